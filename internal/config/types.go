package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "10s", "1m"). Secrets may be left empty in the
// file and supplied through the environment (see OverlayEnv).
type Config struct {
	Upstream UpstreamConfig `json:"upstream"`
	Poller   PollerConfig   `json:"poller"`
	Notifier NotifierConfig `json:"notifier"`
	Sender   SenderConfig   `json:"sender"`
	Storage  StorageConfig  `json:"storage"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
}

// UpstreamConfig points at the Open Data API.
//
// Defaults (when omitted/zero):
//   - base_url: https://openapi.data.uwaterloo.ca
//   - timeout: "10s" (per attempt)
//   - retry_max: 3 (total attempts)
//   - retry_base: "500ms", retry_max_delay: "10s"
//   - rate_per_sec: 0 (unlimited)
type UpstreamConfig struct {
	BaseURL       string  `json:"base_url,omitempty"`
	APIKey        string  `json:"api_key,omitempty"`
	Timeout       string  `json:"timeout,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
}

// PollerConfig controls the poll loop. Interval accepts "30s", "00:05"
// or a cron expression.
type PollerConfig struct {
	Interval string `json:"interval,omitempty"`
	Workers  int    `json:"workers,omitempty"`
}

// NotifierConfig controls dispatch. retry_max counts retries after the
// first attempt; 0 disables retrying.
type NotifierConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
}

// SenderConfig selects how notifications leave the process.
//
// Kind is one of "log" (default), "email", "webhook", "telegram"; only the
// matching sub-block is read.
type SenderConfig struct {
	Kind     string         `json:"kind,omitempty"`
	Email    EmailConfig    `json:"email,omitempty"`
	Webhook  WebhookConfig  `json:"webhook,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type EmailConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
	StartTLS bool   `json:"starttls,omitempty"`
}

type WebhookConfig struct {
	URL     string            `json:"url,omitempty"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./seatwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// HTTPConfig controls the JSON API. Prefer binding to localhost.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default "127.0.0.1:8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Poller:   PollerConfig{Interval: "30s", Workers: 4},
		Notifier: NotifierConfig{RetryMax: 3},
		Sender:   SenderConfig{Kind: "log"},
		Storage:  StorageConfig{Driver: "memory"},
		Logging:  LoggingConfig{Level: "info", Console: true},
	}
}
