package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"seatwatch/internal/config"
	"seatwatch/internal/httpapi"
	"seatwatch/internal/notifier"
	"seatwatch/internal/poller"
	"seatwatch/internal/storage"
	"seatwatch/internal/transport"
	"seatwatch/internal/transport/email"
	"seatwatch/internal/transport/telegram"
	"seatwatch/internal/transport/webhook"
	"seatwatch/internal/upstream"
	logx "seatwatch/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapUpstreamConfig(cfg *config.Config) (upstream.Config, error) {
	u := cfg.Upstream
	if u.RetryMax < 0 {
		return upstream.Config{}, fmt.Errorf("upstream.retry_max must be >= 0")
	}
	if u.RatePerSec < 0 {
		return upstream.Config{}, fmt.Errorf("upstream.rate_per_sec must be >= 0")
	}
	timeout, err := config.ParseDurationField("upstream.timeout", u.Timeout)
	if err != nil {
		return upstream.Config{}, err
	}
	base, err := config.ParseDurationField("upstream.retry_base", u.RetryBase)
	if err != nil {
		return upstream.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("upstream.retry_max_delay", u.RetryMaxDelay)
	if err != nil {
		return upstream.Config{}, err
	}
	return upstream.Config{
		BaseURL:       strings.TrimSpace(u.BaseURL),
		APIKey:        strings.TrimSpace(u.APIKey),
		Timeout:       timeout,
		RetryMax:      u.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		RatePerSec:    u.RatePerSec,
	}, nil
}

func mapPollerConfig(cfg *config.Config) (poller.Config, error) {
	p := cfg.Poller
	if p.Workers < 0 {
		return poller.Config{}, fmt.Errorf("poller.workers must be >= 0")
	}
	interval := strings.TrimSpace(p.Interval)
	if interval != "" {
		if _, err := poller.ParseSchedule(interval); err != nil {
			return poller.Config{}, fmt.Errorf("poller.interval: %w", err)
		}
	}
	return poller.Config{Interval: interval, Workers: p.Workers}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec, retry_max and history_size must be >= 0")
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
		HistorySize:   n.HistorySize,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, bool, error) {
	h := cfg.HTTP
	rt, err := config.ParseDurationField("http.read_timeout", h.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, false, err
	}
	wt, err := config.ParseDurationField("http.write_timeout", h.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, false, err
	}
	return httpapi.Config{Addr: strings.TrimSpace(h.Addr), ReadTimeout: rt, WriteTimeout: wt}, h.Enabled, nil
}

// newSender builds the configured notification channel.
func newSender(cfg *config.Config, httpClient *http.Client, log logx.Logger) (transport.Sender, error) {
	s := cfg.Sender
	switch kind := strings.ToLower(strings.TrimSpace(s.Kind)); kind {
	case "", "log":
		return transport.NewLogSender(log), nil
	case "email":
		return email.New(email.Config{
			Host:     s.Email.Host,
			Port:     s.Email.Port,
			Username: s.Email.Username,
			Password: s.Email.Password,
			From:     s.Email.From,
			StartTLS: s.Email.StartTLS,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     s.Webhook.URL,
			Secret:  s.Webhook.Secret,
			Headers: s.Webhook.Headers,
		}, httpClient)
	case "telegram":
		return telegram.New(telegram.Config{
			Token:    s.Telegram.Token,
			ChatID:   s.Telegram.ChatID,
			ThreadID: s.Telegram.ThreadID,
			APIURL:   s.Telegram.APIURL,
		}, httpClient)
	default:
		return nil, fmt.Errorf("unknown sender.kind: %s", s.Kind)
	}
}

// Validate checks cfg without opening storage or contacting anything.
func Validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.level: invalid %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path is required when logging.file.enabled=true")
	}
	if _, err := mapUpstreamConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPollerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	if _, err := newSender(cfg, nil, logx.Nop()); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	return nil
}
