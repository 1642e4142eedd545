package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dso/pkg/device"
	"github.com/dso/pkg/scope"
)

//go:embed templates/*
var templatesFS embed.FS

const simFIFO = "/tmp/dso_sim"

// sizeFlag custom type to handle units like KB, MB, GB
type sizeFlag int

func (s *sizeFlag) String() string {
	return fmt.Sprintf("%d", *s)
}

func (s *sizeFlag) Type() string { return "size" }

func (s *sizeFlag) Set(value string) error {
	value = strings.TrimSpace(strings.ToUpper(value))
	multiplier := 1

	if strings.HasSuffix(value, "GB") {
		multiplier = 1024 * 1024 * 1024
		value = strings.TrimSuffix(value, "GB")
	} else if strings.HasSuffix(value, "MB") {
		multiplier = 1024 * 1024
		value = strings.TrimSuffix(value, "MB")
	} else if strings.HasSuffix(value, "KB") {
		multiplier = 1024
		value = strings.TrimSuffix(value, "KB")
	} else if strings.HasSuffix(value, "B") {
		value = strings.TrimSuffix(value, "B")
	}

	val, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid size format: %s", value)
	}

	*s = sizeFlag(val * multiplier)
	return nil
}

// UnmarshalYAML accepts the same units in the config file.
func (s *sizeFlag) UnmarshalYAML(n *yaml.Node) error {
	return s.Set(n.Value)
}

func printTimebases() {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Index", "Time/div", "Rate", "Depth", "Upsampled"})
	for i, tb := range scope.Timebases {
		up := ""
		if tb.TimePerDiv <= scope.FastTimePerDiv {
			up = "yes"
		}
		table.Append([]string{
			strconv.Itoa(i),
			tb.Label,
			fmt.Sprintf("%d MS/s", int(tb.Rate)),
			strconv.Itoa(tb.MemDepth),
			up,
		})
	}
	table.Render()
}

func main() {
	configPath := pflag.StringP("config", "c", "dso.yaml", "Configuration file")
	dev := pflag.StringP("device", "d", "", "Sample source: usb, sim, replay:<file> or a pipe path")
	var buffer sizeFlag
	pflag.Var(&buffer, "buffer", "Arena slot size (e.g., 2MB, 512KB)")
	timebase := pflag.IntP("timebase", "t", 0, "Timebase index (see --timebases)")
	mode := pflag.StringP("mode", "m", "", "Trigger mode: auto, normal or single")

	// CLI-specific flags
	outputFile := pflag.StringP("output", "o", "", "Output filename (CLI mode only)")
	format := pflag.StringP("format", "f", "csv", "Export format: csv or parquet (CLI mode only)")
	timeout := pflag.Duration("timeout", 5*time.Second, "How long to wait for a trace (CLI mode only)")

	// Server-specific flags
	isServer := pflag.Bool("server", false, "Run the web server")
	port := pflag.IntP("port", "p", 0, "Port to listen on (Server mode only)")
	announceFlag := pflag.Bool("announce", false, "Advertise the server over mDNS")
	shm := pflag.String("shm", "", "Publish raw frames to this shared memory ring (e.g. /dso_frames)")

	isSim := pflag.Bool("sim", false, "Simulate the scope via a named pipe")
	listTimebases := pflag.Bool("timebases", false, "List the timebases and exit")
	logLevel := pflag.String("log-level", "info", "Log level: debug, info, warn, error")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  CLI Mode:    dso [options]")
		fmt.Fprintln(os.Stderr, "  Server Mode: dso --server [options]")
		fmt.Fprintln(os.Stderr, "  Sim Mode:    dso --sim [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *listTimebases {
		printTimebases()
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "dso",
	})
	lvl, err := log.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal("bad log level", "err", err)
	}
	logger.SetLevel(lvl)
	log.SetDefault(logger)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "path", *configPath, "err", err)
	}
	changed := pflag.CommandLine.Changed
	if changed("device") {
		cfg.Device = *dev
	}
	if changed("buffer") {
		cfg.Buffer = buffer
	}
	if changed("timebase") {
		cfg.Timebase = *timebase
	}
	if changed("mode") {
		cfg.Mode = *mode
	}
	if changed("port") {
		cfg.Server.Port = *port
	}
	if changed("announce") {
		cfg.Server.Announce = *announceFlag
	}
	if changed("shm") {
		cfg.Shm = *shm
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// If simulation mode is on, override device path and start the background generator
	if *isSim {
		if err := device.MakeFIFO(simFIFO); err != nil {
			logger.Fatal("simulator", "err", err)
		}
		cfg.Device = simFIFO
		g.Go(func() error { return RunSimulator(gctx, simFIFO, cfg.Sim, logger) })
	}

	source, closer, err := openDevice(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open device", "device", cfg.Device, "err", err)
	}
	defer closer.Close()

	sess, err := NewSession(cfg, source, logger)
	if err != nil {
		logger.Fatal("failed to start session", "err", err)
	}
	exporter, err := NewExporter(cfg.Export)
	if err != nil {
		logger.Fatal("bad export settings", "err", err)
	}

	if !*isServer {
		err := runCLI(ctx, sess, exporter, *format, *outputFile, *timeout, logger)
		stop()
		g.Wait()
		if err != nil {
			logger.Fatal("capture failed", "err", err)
		}
		return
	}

	hub := NewHub()
	recorder := NewFrameRecorder(logger)
	sinks := []frameSink{recorder}
	if cfg.Shm != "" {
		sink, err := openShmSink(cfg.Shm)
		if err != nil {
			logger.Fatal("failed to create shared memory ring", "name", cfg.Shm, "err", err)
		}
		defer sink.Close()
		sinks = append(sinks, sink)
		logger.Info("publishing frames", "shm", cfg.Shm)
	}

	srv := NewServer(sess, hub, exporter, recorder, logger)
	g.Go(func() error { return sess.Loop().Run(gctx) })
	g.Go(func() error { return runDisplay(gctx, sess, hub, logger, sinks...) })
	g.Go(func() error { return runServer(gctx, cfg.Server.Port, srv, logger) })
	if cfg.Server.Announce {
		g.Go(func() error {
			if err := announce(gctx, cfg.Server.Name, cfg.Server.Port, logger); err != nil {
				logger.Warn("mDNS announcement failed", "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("stopped", "err", err)
		recorder.Stop()
		os.Exit(1)
	}
	recorder.Stop()
}
