package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/dso/pkg/scope"
)

var errNoTrace = errors.New("no trace before timeout")

// runCLI executes the one-shot capture and file save
func runCLI(ctx context.Context, sess *Session, exp *Exporter, format, output string, timeout time.Duration, logger *log.Logger) error {
	acq, ch1, ch2 := sess.Snapshot()
	fmt.Println("--- Scope Capture Session Start ---")
	fmt.Printf("Timebase: %s | Mode: %s | Trigger: CH%d %s\n",
		scope.Timebases[acq.Timebase].Label, acq.Mode, acq.TriggerChannel, sess.State().Edge)
	fmt.Println(">>> CAPTURING...")

	start := time.Now()
	tr, err := captureTrace(ctx, sess, timeout, logger)
	if err != nil {
		return err
	}
	waited := time.Since(start)

	saveStart := time.Now()
	var res ExportResult
	if output == "" {
		res, err = exp.Export(sess, format, saveStart)
	} else {
		res, err = exp.ExportFile(sess, format, output, saveStart)
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	saved := time.Since(saveStart)

	trigger := "none"
	if tr.Trigger != 0 {
		trigger = strconv.Itoa(tr.Trigger)
	}
	fmt.Println("--- Results ---")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"File", res.Path},
		{"ID", res.ID.String()},
		{"Frame", strconv.FormatUint(tr.Seq, 10)},
		{"Trigger", trigger},
		{"Samples", strconv.Itoa(res.Samples)},
		{"Interval", scope.FormatEng(acq.SampleInterval)},
		{"CH1", ch1.Range.String()},
		{"CH2", ch2.Range.String()},
		{"Wait", waited.Round(time.Millisecond).String()},
		{"Save", saved.Round(time.Microsecond).String()},
	})
	table.Render()
	return nil
}

// captureTrace runs the acquisition until the first trace is displayed. The
// loop has stopped when it returns; the export uses the last frame it
// published.
func captureTrace(ctx context.Context, sess *Session, timeout time.Duration, logger *log.Logger) (*Trace, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error { return sess.Loop().Run(gctx) })
	g.Go(func() error { return runDisplay(gctx, sess, nil, logger) })

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	var tr *Trace
wait:
	for {
		select {
		case <-cctx.Done():
			break wait
		case <-tick.C:
			if tr = sess.LastTrace(); tr != nil {
				break wait
			}
		}
	}
	cancel()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if tr == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w of %v", errNoTrace, timeout)
	}
	return tr, nil
}
