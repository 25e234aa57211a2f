package config

import (
	"fmt"
	"time"
)

type Config struct {
	ChannelID          int                 `yaml:"channel_id"`
	BackplanePath      string              `yaml:"backplane_path"`
	FullPreamble       bool                `yaml:"full_preamble"`
	PreambleWindow     int                 `yaml:"preamble_window"`
	RefreshInterval    int                 `yaml:"refresh_interval"`
	BlockSize          int                 `yaml:"block_size"`
	SampleRate         int                 `yaml:"sample_rate"`
	Device             string              `yaml:"device"`
	PlaybackLocation   string              `yaml:"playback_location"`
	TagsLocation       string              `yaml:"tags_location"`
	ReadDelay          time.Duration       `yaml:"read_delay"`
	Seed               int64               `yaml:"seed"`
	ReportFile         string              `yaml:"report_file"`
	OutputDestinations []OutputDestination `yaml:"output_destinations"`
	Synthetic          Synthetic           `yaml:"synthetic"`
	Slicer             Slicer              `yaml:"slicer"`
	VizServer          struct {
		Port           int           `yaml:"port"`
		UpdateIntervalMs int `yaml:"update_interval_ms"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Synthetic configures the generated burst source.
type Synthetic struct {
	BitErrorRate float64 `yaml:"bit_error_rate"`
	LeadBits     int     `yaml:"lead_bits"`
	GapBits      int     `yaml:"gap_bits"`
	Bursts       int     `yaml:"bursts"`
}

// Slicer configures optional hard decisions ahead of the BER block.
// With AGC set the soft values are first normalised around zero, so the
// threshold is relative to the normalised level.
type Slicer struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float32 `yaml:"threshold"`
	Invert    bool    `yaml:"invert"`
	AGC       bool    `yaml:"agc"`
	AGCAlpha  float64 `yaml:"agc_alpha"`
}

const (
	DeviceFile      = "file"
	DeviceSynthetic = "synthetic"
)

const (
	DefaultBackplanePath = "/dev/shm/cbp"
	DefaultBlockSize     = 4096
	DefaultSampleRate    = 9600
	DefaultDevice        = DeviceSynthetic
	DefaultAGCAlpha      = 0.01
)

// ApplyDefaults fills in zero values that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.BackplanePath == "" {
		c.BackplanePath = DefaultBackplanePath
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Device == "" {
		c.Device = DefaultDevice
		if c.PlaybackLocation != "" {
			c.Device = DeviceFile
		}
	}
	if c.Slicer.AGC && c.Slicer.AGCAlpha == 0 {
		c.Slicer.AGCAlpha = DefaultAGCAlpha
	}
}

// Validate reports settings that cannot be run.
func (c *Config) Validate() error {
	switch c.Device {
	case DeviceFile:
		if c.PlaybackLocation == "" {
			return fmt.Errorf("device %q needs playback_location", c.Device)
		}
	case DeviceSynthetic:
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}
	if c.VizServer.UpdateIntervalMs < 0 {
		return fmt.Errorf("viz_server.update_interval_ms must not be negative, got %d", c.VizServer.UpdateIntervalMs)
	}
	return nil
}

// VizUpdateInterval is how often viewed plots are re-rendered.
func (c *Config) VizUpdateInterval() time.Duration {
	return time.Duration(c.VizServer.UpdateIntervalMs) * time.Millisecond
}
