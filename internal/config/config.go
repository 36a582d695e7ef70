package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the hook configuration. Channel sections are pointers: a nil
// section means the channel is not configured at all.
type Config struct {
	Discord    *DiscordConfig    `json:"discord,omitempty" yaml:"discord,omitempty"`
	Slack      *SlackConfig      `json:"slack,omitempty" yaml:"slack,omitempty"`
	Telegram   *TelegramConfig   `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Screenshot *ScreenshotConfig `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`

	// Checks are skipped while the local hour is inside this window.
	Maintenance MaintenanceWindow `json:"maintenance" yaml:"maintenance"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	LogLevel string `json:"log_level" yaml:"log_level"` // "debug", "info", "warn", "error"
	LogFile  string `json:"log_file" yaml:"log_file"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
}

// ScreenshotConfig points at an external screenshot service. Without a
// service URL screenshots are only logged.
type ScreenshotConfig struct {
	ServiceURL string `json:"service_url" yaml:"service_url"`
}

// MetricsConfig controls where the per-invocation counters are pushed.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	PushJob        string `json:"push_job" yaml:"push_job"`

	InfluxURL    string `json:"influx_url" yaml:"influx_url"`
	InfluxToken  string `json:"influx_token" yaml:"influx_token"`
	InfluxOrg    string `json:"influx_org" yaml:"influx_org"`
	InfluxBucket string `json:"influx_bucket" yaml:"influx_bucket"`
}

// MaintenanceWindow is an inclusive range of wall-clock hours.
type MaintenanceWindow struct {
	Disabled  bool `json:"disabled" yaml:"disabled"`
	StartHour int  `json:"start_hour" yaml:"start_hour"`
	EndHour   int  `json:"end_hour" yaml:"end_hour"`
}

// Contains reports whether hour falls inside the window. A window whose end
// is before its start wraps midnight (e.g. 22-1 covers 22, 23, 0 and 1).
func (w MaintenanceWindow) Contains(hour int) bool {
	if w.Disabled {
		return false
	}
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour <= w.EndHour
	}
	return hour >= w.StartHour || hour <= w.EndHour
}

// IsWithinMaintenance returns true when now is inside the maintenance window.
func (c *Config) IsWithinMaintenance(now time.Time) bool {
	return c.Maintenance.Contains(now.Hour())
}

// DiscordWebhook returns the Discord webhook URL or "" when unset.
func (c *Config) DiscordWebhook() string {
	if c.Discord == nil {
		return ""
	}
	return c.Discord.WebhookURL
}

// SlackWebhook returns the Slack webhook URL or "" when unset.
func (c *Config) SlackWebhook() string {
	if c.Slack == nil {
		return ""
	}
	return c.Slack.WebhookURL
}

// TelegramEnabled reports whether the telegram section has enabled: true.
// Credentials are checked separately by TelegramCredentials.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram != nil && c.Telegram.Enabled
}

// TelegramCredentials returns the bot token and chat id. ok is false when
// either one is missing.
func (c *Config) TelegramCredentials() (token, chatID string, ok bool) {
	if c.Telegram == nil {
		return "", "", false
	}
	token, chatID = c.Telegram.BotToken, c.Telegram.ChatID
	return token, chatID, token != "" && chatID != ""
}

// ScreenshotServiceURL returns the screenshot service URL or "" when unset.
func (c *Config) ScreenshotServiceURL() string {
	if c.Screenshot == nil {
		return ""
	}
	return c.Screenshot.ServiceURL
}

// DefaultConfig returns a configuration with no channels and the 02:00-04:59
// maintenance window.
func DefaultConfig() *Config {
	return &Config{
		Maintenance: MaintenanceWindow{
			StartHour: 2,
			EndHour:   4,
		},
		Metrics: MetricsConfig{
			PushJob: "watchhook",
		},
		LogLevel: "info",
	}
}

// Validate returns a list of non-fatal configuration warnings, such as
// incomplete channel credentials.
func (c *Config) Validate() []string {
	var warnings []string
	tg := c.Telegram
	if tg == nil {
		tg = &TelegramConfig{}
	}
	checks := []struct {
		cond bool
		msg  string
	}{
		{tg.Enabled && tg.BotToken == "", "telegram enabled but bot_token is missing"},
		{tg.Enabled && tg.ChatID == "", "telegram enabled but chat_id is missing"},
		{!tg.Enabled && tg.BotToken != "" && tg.ChatID != "", "telegram credentials provided but enabled is false"},
		{c.Metrics.InfluxURL != "" && c.Metrics.InfluxBucket == "", "influx URL provided but bucket is missing"},
		{c.Metrics.PushgatewayURL != "" && c.Metrics.PushJob == "", "pushgateway URL provided but push_job is empty"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	urls := []struct{ name, raw string }{
		{"discord.webhook_url", c.DiscordWebhook()},
		{"slack.webhook_url", c.SlackWebhook()},
		{"screenshot.service_url", c.ScreenshotServiceURL()},
		{"metrics.pushgateway_url", c.Metrics.PushgatewayURL},
		{"metrics.influx_url", c.Metrics.InfluxURL},
	}
	for _, u := range urls {
		if w := validateHTTPURL(u.name, u.raw); w != "" {
			warnings = append(warnings, w)
		}
	}
	if w := validateMaintenance(c.Maintenance); w != "" {
		warnings = append(warnings, w)
	}
	return warnings
}

// validateHTTPURL returns a warning when raw is set but is not an absolute http(s) URL.
func validateHTTPURL(name, raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("invalid %s: %q (expected an http or https URL)", name, raw)
	}
	return ""
}

func validateMaintenance(w MaintenanceWindow) string {
	if w.Disabled {
		return ""
	}
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Sprintf("invalid maintenance window %d-%d (hours must be 0-23)", w.StartHour, w.EndHour)
	}
	return ""
}

// LoadConfigFromFile loads config from a YAML/JSON file on top of the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
