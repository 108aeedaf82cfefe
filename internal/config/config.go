// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers an optional YAML file and env vars on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MailboxSize bounds each match sequencer's pending-request mailbox.
	MailboxSize int `koanf:"mailbox_size"`

	// SessionSendBuffer bounds each subscriber session's outbound queue.
	SessionSendBuffer int `koanf:"session_send_buffer"`

	// RecentEventsLimit caps the recent_events list in snapshots.
	RecentEventsLimit int `koanf:"recent_events_limit"`

	// IngestTimeoutMS bounds one ingest call end to end.
	IngestTimeoutMS int `koanf:"ingest_timeout_ms"`
}

// IngestTimeout returns the configured ingest bound as a duration.
func (c *Config) IngestTimeout() time.Duration {
	return time.Duration(c.IngestTimeoutMS) * time.Millisecond
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		MailboxSize:       256,
		SessionSendBuffer: 256,
		RecentEventsLimit: 20,
		IngestTimeoutMS:   5_000,
	}
}
