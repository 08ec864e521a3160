package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Secrets are read from the environment and override values from the file.
type Secrets struct {
	APIKey        string `env:"UWATERLOO_API_KEY"`
	SMTPPassword  string `env:"SEATWATCH_SMTP_PASSWORD"`
	TelegramToken string `env:"SEATWATCH_TELEGRAM_TOKEN"`
	WebhookSecret string `env:"SEATWATCH_WEBHOOK_SECRET"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// OverlayEnv copies non-empty secrets from the environment into cfg.
func OverlayEnv(cfg *Config) error {
	var s Secrets
	if err := ParseEnv(&s); err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Upstream.APIKey, s.APIKey)
	set(&cfg.Sender.Email.Password, s.SMTPPassword)
	set(&cfg.Sender.Telegram.Token, s.TelegramToken)
	set(&cfg.Sender.Webhook.Secret, s.WebhookSecret)
	return nil
}
