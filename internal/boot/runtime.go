// Package boot provides runtime configuration and dependency wiring for the relay.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/memohai/orderbot/internal/config"
)

// RuntimeConfig holds validated runtime settings derived from config.Config.
// Values may be overridden by environment variables (e.g. HTTP_ADDR, TELEGRAM_BOT_TOKEN).
type RuntimeConfig struct {
	ServerAddr        string
	AdminToken        string
	TelegramToken     string
	WhapiToken        string
	LLMAPIKey         string
	LLMTimeout        time.Duration
	RecordsBackend    string
	AirtableAPIKey    string
	AirtableBaseID    string
	RecordsTimeout    time.Duration
	DropboxToken      string
	Recipients        []string
	SlackToken        string
	ReconcileInterval time.Duration
	ReminderDelay     time.Duration
	WhapiPollInterval time.Duration
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config, applies env overrides
// and rejects configurations the relay cannot start with.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		ServerAddr:     cfg.Server.Addr,
		AdminToken:     cfg.Server.AdminToken,
		LLMAPIKey:      cfg.LLM.APIKey,
		RecordsBackend: strings.ToLower(strings.TrimSpace(cfg.Records.Backend)),
		AirtableAPIKey: cfg.Records.Airtable.APIKey,
		AirtableBaseID: cfg.Records.Airtable.BaseID,
		DropboxToken:   cfg.Attachment.Dropbox.AccessToken,
		Recipients:     cleanList(cfg.Kitchen.Recipients),
		SlackToken:     cfg.Kitchen.SlackToken,
		LLMTimeout:     seconds(cfg.LLM.TimeoutSeconds, config.DefaultLLMTimeoutSeconds),
		RecordsTimeout: seconds(cfg.Records.TimeoutSeconds, config.DefaultRecordsTimeout),
	}
	if cfg.Telegram.Enabled {
		ret.TelegramToken = cfg.Telegram.BotToken
	}
	if cfg.Whapi.Enabled {
		ret.WhapiToken = cfg.Whapi.Token
	}

	overrides := []struct {
		key    string
		target *string
	}{
		{"HTTP_ADDR", &ret.ServerAddr},
		{"ADMIN_TOKEN", &ret.AdminToken},
		{"TELEGRAM_BOT_TOKEN", &ret.TelegramToken},
		{"WHATSAPP_TOKEN", &ret.WhapiToken},
		{"PERPLEXITY_API_KEY", &ret.LLMAPIKey},
		{"LLM_API_KEY", &ret.LLMAPIKey},
		{"AIRTABLE_API_KEY", &ret.AirtableAPIKey},
		{"AIRTABLE_BASE_ID", &ret.AirtableBaseID},
		{"DROPBOX_ACCESS_TOKEN", &ret.DropboxToken},
		{"SLACK_BOT_TOKEN", &ret.SlackToken},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.key)); value != "" {
			*o.target = value
		}
	}
	if value := os.Getenv("KITCHEN_STAFF_IDS"); strings.TrimSpace(value) != "" {
		ret.Recipients = cleanList(strings.Split(value, ","))
	}

	var err error
	if ret.ReconcileInterval, err = parseDuration("reconcile.interval", cfg.Reconcile.Interval, config.DefaultReconcileInterval); err != nil {
		return nil, err
	}
	if ret.ReminderDelay, err = parseDuration("inbound.reminder_delay", cfg.Inbound.ReminderDelay, config.DefaultReminderDelay); err != nil {
		return nil, err
	}
	if ret.WhapiPollInterval, err = parseDuration("whapi.poll_interval", cfg.Whapi.PollInterval, config.DefaultWhapiPollInterval); err != nil {
		return nil, err
	}

	if err := ret.validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *RuntimeConfig) validate() error {
	var errs []error
	if strings.TrimSpace(r.LLMAPIKey) == "" {
		errs = append(errs, errors.New("llm api key is required"))
	}
	if strings.TrimSpace(r.TelegramToken) == "" && strings.TrimSpace(r.WhapiToken) == "" {
		errs = append(errs, errors.New("at least one transport (telegram or whapi) must be configured"))
	}
	switch r.RecordsBackend {
	case "airtable":
		if strings.TrimSpace(r.AirtableAPIKey) == "" || strings.TrimSpace(r.AirtableBaseID) == "" {
			errs = append(errs, errors.New("airtable api key and base id are required"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported records backend: %q", r.RecordsBackend))
	}
	if len(r.Recipients) == 0 {
		errs = append(errs, errors.New("at least one kitchen recipient is required"))
	}
	for _, recipient := range r.Recipients {
		if strings.HasPrefix(recipient, "slack:") && strings.TrimSpace(r.SlackToken) == "" {
			errs = append(errs, fmt.Errorf("slack token is required for recipient %s", recipient))
			break
		}
		if !strings.HasPrefix(recipient, "slack:") && strings.TrimSpace(r.TelegramToken) == "" {
			errs = append(errs, fmt.Errorf("telegram token is required for recipient %s", recipient))
			break
		}
	}
	return errors.Join(errs...)
}

func parseDuration(name, raw, fallback string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
