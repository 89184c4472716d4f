package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Timezone is the IANA zone all user-facing times are interpreted in,
	// e.g. "Europe/Moscow".
	Timezone string `json:"timezone"`

	Reminder ReminderConfig `json:"reminder"`
	Storage  StorageConfig  `json:"storage"`
	Notify   NotifyConfig   `json:"notify"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string for the long poller (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// OperatorChatID receives panic reports and mirrored error logs.
	OperatorChatID int64 `json:"operator_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LogFileConfig     `json:"file,omitempty"`
	Mirror  LogOperatorConfig `json:"operator_mirror,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LogOperatorConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type ReminderConfig struct {
	// DefaultLeadMinutes is used when a user never set their own lead time.
	DefaultLeadMinutes int `json:"default_lead_minutes,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type NotifyConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DeliverTimeout string `json:"deliver_timeout,omitempty"` // Go duration string
}

const (
	DefaultLeadMinutes   = 5
	DefaultNotifyWorkers = 2
	DefaultNotifyQueue   = 256
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: unknown zone %q: %w", c.Timezone, err)
		}
	}
	if c.Reminder.DefaultLeadMinutes < 0 {
		return errors.New("reminder.default_lead_minutes must be >= 0")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("notify.deliver_timeout", c.Notify.DeliverTimeout); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone, defaulting to time.Local.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// LeadMinutes returns the configured default lead time.
func (c *Config) LeadMinutes() int {
	if c.Reminder.DefaultLeadMinutes > 0 {
		return c.Reminder.DefaultLeadMinutes
	}
	return DefaultLeadMinutes
}

// ParseDurationField parses an optional Go duration string from the config.
// An empty value means "not set" and yields zero; key names the config field
// in error messages.
func ParseDurationField(key, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", key, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// values.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
