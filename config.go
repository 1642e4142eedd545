package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dso/pkg/device"
	"github.com/dso/pkg/scope"
)

// Config is the start-up configuration read from dso.yaml. Command line
// flags override it.
type Config struct {
	// Device is "usb", "sim", "replay:<file>" or the path of a pipe or
	// character device delivering interleaved samples.
	Device      string           `yaml:"device"`
	Timebase    int              `yaml:"timebase"`
	Holdoff     time.Duration    `yaml:"holdoff"`
	Mode        string           `yaml:"mode"`
	Run         bool             `yaml:"run"`
	Trigger     TriggerConfig    `yaml:"trigger"`
	ChannelAdd  bool             `yaml:"channel_add"`
	Channels    []ChannelFile    `yaml:"channels"`
	Calibration string           `yaml:"calibration"`
	Export      ExportConfig     `yaml:"export"`
	Server      ServerConfig     `yaml:"server"`
	Shm         string           `yaml:"shm"`
	Buffer      sizeFlag         `yaml:"buffer"` // bytes per arena slot
	Sim         device.SimConfig `yaml:"sim"`
}

type TriggerConfig struct {
	Channel int     `yaml:"channel"`
	Edge    string  `yaml:"edge"`
	Volts   float64 `yaml:"volts"`
	Delay   float64 `yaml:"delay"` // seconds
}

type ChannelFile struct {
	Preset  int     `yaml:"preset"`
	Offset  float64 `yaml:"offset"`
	Enabled bool    `yaml:"enabled"`
	Invert  bool    `yaml:"invert"`
	Glitch  bool    `yaml:"glitch"`
}

type ExportConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"` // strftime, without extension
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Announce bool   `yaml:"announce"`
	Name     string `yaml:"name"`
}

func DefaultConfig() Config {
	return Config{
		Device:   "sim",
		Timebase: scope.DefaultTimebase,
		Holdoff:  scope.DefaultHoldoff,
		Mode:     scope.Auto.String(),
		Run:      true,
		Trigger:  TriggerConfig{Channel: 1, Edge: scope.Rising.String()},
		Channels: []ChannelFile{
			{Preset: 1, Enabled: true},
			{Preset: 1, Enabled: true},
		},
		Export: ExportConfig{Dir: "data", Pattern: "trace_%Y%m%d_%H%M%S"},
		Server: ServerConfig{Port: 8080, Name: "dso"},
		Buffer: 2 * scope.MaxDepth,
		Sim:    device.DefaultSimConfig(),
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the session cannot apply.
func (c *Config) Validate() error {
	if c.Timebase < 0 || c.Timebase >= len(scope.Timebases) {
		return fmt.Errorf("timebase %d out of range 0..%d", c.Timebase, len(scope.Timebases)-1)
	}
	if m, err := scope.ParseMode(c.Mode); err != nil {
		return err
	} else if m == scope.Hold {
		return errors.New("hold is not a selectable mode")
	}
	if c.Trigger.Channel != 1 && c.Trigger.Channel != 2 {
		return fmt.Errorf("trigger channel %d", c.Trigger.Channel)
	}
	if _, err := parseEdge(c.Trigger.Edge); err != nil {
		return err
	}
	if len(c.Channels) > 2 {
		return fmt.Errorf("%d channels configured, the scope has 2", len(c.Channels))
	}
	for i, ch := range c.Channels {
		if ch.Preset < 0 || ch.Preset >= scope.NumRanges {
			return fmt.Errorf("channel %d: preset %d out of range", i+1, ch.Preset)
		}
	}
	if c.Buffer < 2*scope.MinDepth || c.Buffer > 2*scope.MaxDepth {
		return fmt.Errorf("buffer %d bytes outside %d..%d", c.Buffer, 2*scope.MinDepth, 2*scope.MaxDepth)
	}
	if c.Holdoff < 0 {
		return fmt.Errorf("negative holdoff %v", c.Holdoff)
	}
	return nil
}

func parseEdge(s string) (scope.Edge, error) {
	switch s {
	case scope.Rising.String():
		return scope.Rising, nil
	case scope.Falling.String():
		return scope.Falling, nil
	}
	return 0, fmt.Errorf("unknown trigger edge %q", s)
}
