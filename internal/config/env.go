package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - WATCHHOOK_DISCORD_WEBHOOK_URL
// - WATCHHOOK_SLACK_WEBHOOK_URL
// - WATCHHOOK_TELEGRAM_ENABLED (bool, e.g. "true")
// - WATCHHOOK_TELEGRAM_BOT_TOKEN
// - WATCHHOOK_TELEGRAM_CHAT_ID
// - WATCHHOOK_SCREENSHOT_SERVICE_URL
// - WATCHHOOK_MAINTENANCE_START_HOUR / WATCHHOOK_MAINTENANCE_END_HOUR (int, 0-23)
// - WATCHHOOK_MAINTENANCE_DISABLED (bool)
// - WATCHHOOK_PUSHGATEWAY_URL, WATCHHOOK_PUSH_JOB
// - WATCHHOOK_INFLUX_URL, WATCHHOOK_INFLUX_TOKEN, WATCHHOOK_INFLUX_ORG, WATCHHOOK_INFLUX_BUCKET
// - WATCHHOOK_LOG_LEVEL, WATCHHOOK_LOG_FILE
func ApplyEnvOverrides(cfg *Config) error {
	if err := applyChannelEnv(cfg); err != nil {
		return err
	}
	if err := applyMaintenanceEnv(cfg); err != nil {
		return err
	}
	applyMetricsEnv(cfg)
	applyLoggingEnv(cfg)
	return nil
}

// applyChannelEnv consolidates notification channel and screenshot env parsing
func applyChannelEnv(cfg *Config) error {
	if v := os.Getenv("WATCHHOOK_DISCORD_WEBHOOK_URL"); v != "" {
		if cfg.Discord == nil {
			cfg.Discord = &DiscordConfig{}
		}
		cfg.Discord.WebhookURL = v
	}
	if v := os.Getenv("WATCHHOOK_SLACK_WEBHOOK_URL"); v != "" {
		if cfg.Slack == nil {
			cfg.Slack = &SlackConfig{}
		}
		cfg.Slack.WebhookURL = v
	}
	if err := setBoolEnv("WATCHHOOK_TELEGRAM_ENABLED", func(b bool) { telegramSection(cfg).Enabled = b }); err != nil {
		return err
	}
	if v := os.Getenv("WATCHHOOK_TELEGRAM_BOT_TOKEN"); v != "" {
		telegramSection(cfg).BotToken = v
	}
	if v := os.Getenv("WATCHHOOK_TELEGRAM_CHAT_ID"); v != "" {
		telegramSection(cfg).ChatID = v
	}
	if v := os.Getenv("WATCHHOOK_SCREENSHOT_SERVICE_URL"); v != "" {
		if cfg.Screenshot == nil {
			cfg.Screenshot = &ScreenshotConfig{}
		}
		cfg.Screenshot.ServiceURL = v
	}
	return nil
}

func telegramSection(cfg *Config) *TelegramConfig {
	if cfg.Telegram == nil {
		cfg.Telegram = &TelegramConfig{}
	}
	return cfg.Telegram
}

func applyMaintenanceEnv(cfg *Config) error {
	if err := setIntEnv("WATCHHOOK_MAINTENANCE_START_HOUR", func(n int) { cfg.Maintenance.StartHour = n }); err != nil {
		return err
	}
	if err := setIntEnv("WATCHHOOK_MAINTENANCE_END_HOUR", func(n int) { cfg.Maintenance.EndHour = n }); err != nil {
		return err
	}
	return setBoolEnv("WATCHHOOK_MAINTENANCE_DISABLED", func(b bool) { cfg.Maintenance.Disabled = b })
}

func applyMetricsEnv(cfg *Config) {
	if v := os.Getenv("WATCHHOOK_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("WATCHHOOK_PUSH_JOB"); v != "" {
		cfg.Metrics.PushJob = v
	}
	if v := os.Getenv("WATCHHOOK_INFLUX_URL"); v != "" {
		cfg.Metrics.InfluxURL = v
	}
	if v := os.Getenv("WATCHHOOK_INFLUX_TOKEN"); v != "" {
		cfg.Metrics.InfluxToken = v
	}
	if v := os.Getenv("WATCHHOOK_INFLUX_ORG"); v != "" {
		cfg.Metrics.InfluxOrg = v
	}
	if v := os.Getenv("WATCHHOOK_INFLUX_BUCKET"); v != "" {
		cfg.Metrics.InfluxBucket = v
	}
}

func applyLoggingEnv(cfg *Config) {
	if v := os.Getenv("WATCHHOOK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WATCHHOOK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// setBoolEnv is a small helper to parse boolean environment variables
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}

func setIntEnv(env string, setter func(int)) error {
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(n)
	}
	return nil
}
