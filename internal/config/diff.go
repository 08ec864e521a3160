package config

import (
	"reflect"
	"sort"
	"strings"

	logx "seatwatch/pkg/logx"
)

// Sections applied in place on reload. Everything else needs a restart.
var hotSections = map[string]bool{
	"logging":  true,
	"poller":   true,
	"notifier": true,
}

// SummarizeConfigChange returns the changed section names and safe
// structured attrs for logging. Secrets are reported only as "_set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	ou, nu := oldCfg.Upstream, newCfg.Upstream
	if ou.BaseURL != nu.BaseURL || ou.Timeout != nu.Timeout || ou.RetryMax != nu.RetryMax ||
		ou.RetryBase != nu.RetryBase || ou.RetryMaxDelay != nu.RetryMaxDelay ||
		ou.RatePerSec != nu.RatePerSec || ou.APIKey != nu.APIKey {
		changed = append(changed, "upstream")
		attrs = append(attrs,
			logx.String("upstream.base_url", strings.TrimSpace(nu.BaseURL)),
			logx.Bool("upstream.api_key_set", strings.TrimSpace(nu.APIKey) != ""),
			logx.Int("upstream.retry_max", nu.RetryMax),
		)
	}

	if oldCfg.Poller != newCfg.Poller {
		changed = append(changed, "poller")
		attrs = append(attrs,
			logx.String("poller.interval", strings.TrimSpace(newCfg.Poller.Interval)),
			logx.Int("poller.workers", newCfg.Poller.Workers),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		n := newCfg.Notifier
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.workers", n.Workers),
			logx.Int("notifier.queue_size", n.QueueSize),
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Int("notifier.retry_max", n.RetryMax),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sender, newCfg.Sender) {
		s := newCfg.Sender
		changed = append(changed, "sender")
		attrs = append(attrs, logx.String("sender.kind", strings.TrimSpace(s.Kind)))
		switch strings.ToLower(strings.TrimSpace(s.Kind)) {
		case "email":
			attrs = append(attrs,
				logx.String("sender.email.host", s.Email.Host),
				logx.Bool("sender.email.password_set", s.Email.Password != ""),
			)
		case "webhook":
			attrs = append(attrs, logx.Bool("sender.webhook.secret_set", s.Webhook.Secret != ""))
		case "telegram":
			attrs = append(attrs,
				logx.Int64("sender.telegram.chat_id", s.Telegram.ChatID),
				logx.Bool("sender.telegram.token_set", s.Telegram.Token != ""),
			)
		}
	}

	if oldCfg.Storage != newCfg.Storage {
		s := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(s.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to sections that are not applied
// in place.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
