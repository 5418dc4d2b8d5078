// Package config loads the YAML configuration shared by edmctl and edmtail.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/edmgate/internal/export"
	"example.com/edmgate/internal/jpi"
)

type Config struct {
	Decoder DecoderConfig `yaml:"decoder"`
	Output  OutputConfig  `yaml:"output"`
	Report  ReportConfig  `yaml:"report"`
	Tail    TailConfig    `yaml:"tail"`
	Logs    LogConfig     `yaml:"logs"`
}

type DecoderConfig struct {
	// MaskMode is "carry" (default) or "reset".
	MaskMode string `yaml:"maskMode"`
	// MinHeaderBytes is how much a live capture must hold before the header
	// is parsed. Negative disables the wait.
	MinHeaderBytes int  `yaml:"minHeaderBytes"`
	HeadersOnly    bool `yaml:"headersOnly"`
	Verbose        bool `yaml:"verbose"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
	// FuelUnit converts fuel totals (gph, pph, lph, kph); empty keeps the
	// unit the device was configured with.
	FuelUnit string `yaml:"fuelUnit"`
}

type ReportConfig struct {
	QRSize     int `yaml:"qrSize"`
	MaxOutages int `yaml:"maxOutages"`
}

type TailConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	// IdleTimeout closes the input when the file has not grown for this
	// long. Zero waits for a signal.
	IdleTimeout time.Duration `yaml:"idleTimeout"`
	FlightLog   string        `yaml:"flightLog"`
}

type LogConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads path, fills defaults and validates the result. Relative paths
// in the file are resolved against the file's directory when they exist
// there.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	cfg.Output.Dir = resolvePath(cfg.Output.Dir)
	cfg.Tail.FlightLog = resolvePath(cfg.Tail.FlightLog)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Decoder.MaskMode == "" {
		c.Decoder.MaskMode = jpi.MaskCarry.String()
	}
	if c.Decoder.MinHeaderBytes == 0 {
		c.Decoder.MinHeaderBytes = jpi.MinHeaderBytes
	}
	if c.Output.Dir == "" {
		c.Output.Dir = filepath.Join(".", "out")
	}
	if c.Output.Format == "" {
		c.Output.Format = string(export.FormatJSON)
	}
	if c.Report.QRSize <= 0 {
		c.Report.QRSize = 128
	}
	if c.Tail.PollInterval <= 0 {
		c.Tail.PollInterval = time.Second
	}
	if c.Tail.FlightLog == "" {
		c.Tail.FlightLog = filepath.Join(c.Output.Dir, "flights.jsonl")
	}
	if c.Logs.Directory == "" {
		c.Logs.Directory = filepath.Join(c.Output.Dir, "logs")
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 25
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 7
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
}

func (c *Config) validate() error {
	if _, err := jpi.ParseMaskMode(c.Decoder.MaskMode); err != nil {
		return fmt.Errorf("decoder.maskMode: %w", err)
	}
	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Output.FuelUnit != "" {
		if _, ok := jpi.ParseFuelUnit(c.Output.FuelUnit); !ok {
			return fmt.Errorf("output.fuelUnit: unknown unit %q", c.Output.FuelUnit)
		}
	}
	if c.Report.MaxOutages < 0 {
		return fmt.Errorf("report.maxOutages must not be negative")
	}
	if c.Tail.IdleTimeout < 0 {
		return fmt.Errorf("tail.idleTimeout must not be negative")
	}
	return nil
}

// DecodeOptions translates the decoder section into session options.
func (c *Config) DecodeOptions() jpi.Options {
	mode, _ := jpi.ParseMaskMode(c.Decoder.MaskMode)
	return jpi.Options{
		MaskMode:       mode,
		MinHeaderBytes: c.Decoder.MinHeaderBytes,
		HeadersOnly:    c.Decoder.HeadersOnly,
	}
}

// ExportFormat returns the validated output format.
func (c *Config) ExportFormat() export.Format {
	f, _ := export.ParseFormat(c.Output.Format)
	return f
}

// FuelUnit returns the configured display unit and whether one was set.
func (c *Config) FuelUnit() (jpi.FuelUnit, bool) {
	if c.Output.FuelUnit == "" {
		return 0, false
	}
	return jpi.ParseFuelUnit(c.Output.FuelUnit)
}

// Rotator opens the rotating log file name inside the log directory.
func (l LogConfig) Rotator(name string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(l.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(l.Directory, name),
		MaxSize:    l.MaxSizeMB,
		MaxAge:     l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
	}, nil
}
