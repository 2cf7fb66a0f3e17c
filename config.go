package mxprobe

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultConnectTimeout    = 5 * time.Second
	DefaultCommandTimeout    = 5 * time.Second
	DefaultBannerTimeout     = 5 * time.Second
	DefaultDelayBetweenHosts = 1 * time.Second
	DefaultPort              = 25
	DefaultReadChunk         = 4096
	DefaultLogDir            = "log"
)

// Config contains the options that shape every session of a run.
//
// A zero timeout, port or read chunk falls back to its default when a
// session starts. Zero delays mean no delay.
type Config struct {
	// ---- Timeouts ----

	// ConnectTimeout bounds the TCP connect.
	// Default: 5 seconds
	ConnectTimeout time.Duration

	// BannerTimeout bounds the wait for the server greeting.
	// Default: 5 seconds
	BannerTimeout time.Duration

	// CommandTimeout bounds each command write and each reply read.
	// Default: 5 seconds
	CommandTimeout time.Duration

	// ---- Pacing ----

	// DelayBeforeFirstCommand is slept once, after the banner and before the
	// first command.
	DelayBeforeFirstCommand time.Duration

	// DelayBetweenCommands is slept after every command, on top of the
	// command's own pause.
	DelayBetweenCommands time.Duration

	// DelayBetweenHosts is slept between two targets.
	// Default: 1 second
	DelayBetweenHosts time.Duration

	// ---- Transport ----

	// Port is the destination TCP port.
	// Default: 25
	Port int

	// ReadChunk is the buffer size of a single read.
	// Default: 4096
	ReadChunk int

	// ---- Output ----

	// LogDir is the root directory for transcripts.
	// Default: "log"
	LogDir string

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    DefaultConnectTimeout,
		BannerTimeout:     DefaultBannerTimeout,
		CommandTimeout:    DefaultCommandTimeout,
		DelayBetweenHosts: DefaultDelayBetweenHosts,
		Port:              DefaultPort,
		ReadChunk:         DefaultReadChunk,
		LogDir:            DefaultLogDir,
		Logger:            slog.Default(),
	}
}

// Validate rejects negative durations and out-of-range ports or chunk sizes.
func (c Config) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"banner_timeout", c.BannerTimeout},
		{"command_timeout", c.CommandTimeout},
		{"delay_before_first_command", c.DelayBeforeFirstCommand},
		{"delay_between_commands", c.DelayBetweenCommands},
		{"delay_between_hosts", c.DelayBetweenHosts},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, d.name)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.ReadChunk < 0 {
		return fmt.Errorf("%w: read_chunk must be positive", ErrInvalidConfig)
	}
	return nil
}

// withDefaults fills zero fields that have no meaningful zero value.
func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.BannerTimeout == 0 {
		c.BannerTimeout = DefaultBannerTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadChunk == 0 {
		c.ReadChunk = DefaultReadChunk
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
