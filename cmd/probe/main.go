// probe lists the Hantek 6022 scopes on the USB bus and whether their
// firmware has been loaded.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"

	"github.com/dso/pkg/hantek"
)

func main() {
	quiet := pflag.BoolP("quiet", "q", false, "Only set the exit status")
	pflag.Parse()

	infos, err := hantek.Probe()
	if err != nil {
		log.Fatal("probe failed", "err", err)
	}

	ready := 0
	for _, info := range infos {
		if info.Ready() {
			ready++
		}
	}
	if !*quiet {
		if len(infos) == 0 {
			fmt.Println("no scope found")
		} else {
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Bus", "Address", "ID", "Product", "Serial", "Node", "State"})
			for _, info := range infos {
				table.Append([]string{
					info.Bus,
					info.Address,
					info.VendorID + ":" + info.ProductID,
					info.Manufacturer + " " + info.Product,
					info.Serial,
					info.Devnode,
					info.State(),
				})
			}
			table.Render()
		}
	}
	if ready == 0 {
		os.Exit(1)
	}
}
