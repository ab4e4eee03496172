// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultStateBackend      = "file"
	DefaultStatePath         = "data/conversations.json"
	DefaultLLMBaseURL        = "https://api.perplexity.ai"
	DefaultLLMModel          = "sonar-pro"
	DefaultLLMMaxTokens      = 600
	DefaultLLMTemperature    = 0.6
	DefaultLLMTimeoutSeconds = 60
	DefaultRecordsBackend    = "airtable"
	DefaultAirtableBaseURL   = "https://api.airtable.com/v0"
	DefaultAirtableTable     = "Orders"
	DefaultSQLitePath        = "data/orders.db"
	DefaultRecordsTimeout    = 10
	DefaultReconcileInterval = "10s"
	DefaultSeenCapacity      = 10000
	DefaultGateCapacity      = 2000
	DefaultReminderDelay     = "15m"
	DefaultWhapiBaseURL      = "https://gate.whapi.cloud"
	DefaultWhapiPollInterval = "3s"
	DefaultNotifyRate        = 20
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "orderbot"
	DefaultPGSSLMode         = "disable"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	State      StateConfig      `toml:"state"`
	Postgres   PostgresConfig   `toml:"postgres"`
	LLM        LLMConfig        `toml:"llm"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Records    RecordsConfig    `toml:"records"`
	Attachment AttachmentConfig `toml:"attachment"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Whapi      WhapiConfig      `toml:"whapi"`
	Kitchen    KitchenConfig    `toml:"kitchen"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Inbound    InboundConfig    `toml:"inbound"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address and the admin API token.
type ServerConfig struct {
	Addr       string `toml:"addr"`
	AdminToken string `toml:"admin_token"`
}

// StateConfig selects where the conversation document is persisted ("file", "postgres" or "memory").
type StateConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// LLMConfig holds the OpenAI-compatible chat completion endpoint settings.
type LLMConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	DisableSearch  bool    `toml:"disable_search"`
}

// CatalogConfig points at an optional YAML menu file; the built-in menu is used when empty.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// RecordsConfig selects the order record store ("airtable" or "sqlite").
type RecordsConfig struct {
	Backend        string         `toml:"backend"`
	TimeoutSeconds int            `toml:"timeout_seconds"`
	Airtable       AirtableConfig `toml:"airtable"`
	SQLite         SQLiteConfig   `toml:"sqlite"`
}

// AirtableConfig holds Airtable credentials and the orders table.
type AirtableConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	BaseID  string `toml:"base_id"`
	Table   string `toml:"table"`
}

// SQLiteConfig holds the path of the local orders database.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// AttachmentConfig selects durable receipt storage ("", "dropbox" or "s3").
type AttachmentConfig struct {
	Backend string        `toml:"backend"`
	Dropbox DropboxConfig `toml:"dropbox"`
	S3      S3Config      `toml:"s3"`
}

// DropboxConfig holds the Dropbox access token and the receipts folder.
type DropboxConfig struct {
	AccessToken string `toml:"access_token"`
	Folder      string `toml:"folder"`
}

// S3Config holds bucket parameters for receipt uploads.
type S3Config struct {
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`
	Prefix        string `toml:"prefix"`
	PublicBaseURL string `toml:"public_base_url"`
}

// TelegramConfig holds the bot token used for customers and kitchen staff.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	Enabled  bool   `toml:"enabled"`
}

// WhapiConfig holds the WhatsApp gateway token and polling cadence.
type WhapiConfig struct {
	BaseURL      string `toml:"base_url"`
	Token        string `toml:"token"`
	Enabled      bool   `toml:"enabled"`
	Poll         bool   `toml:"poll"`
	PollInterval string `toml:"poll_interval"`
}

// KitchenConfig lists staff recipients ("telegram:<chat_id>", "slack:<channel>" or a bare chat id).
type KitchenConfig struct {
	Recipients []string `toml:"recipients"`
	SlackToken string   `toml:"slack_token"`
	RatePerSec int      `toml:"rate_per_sec"`
}

// ReconcileConfig controls the paid-order polling loop.
type ReconcileConfig struct {
	Interval     string `toml:"interval"`
	SeenCapacity int    `toml:"seen_capacity"`
}

// InboundConfig controls deduplication and reminders for inbound events.
type InboundConfig struct {
	GateCapacity  int    `toml:"gate_capacity"`
	ReminderDelay string `toml:"reminder_delay"`
	Workers       int    `toml:"workers"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		State: StateConfig{
			Backend: DefaultStateBackend,
			Path:    DefaultStatePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		LLM: LLMConfig{
			BaseURL:        DefaultLLMBaseURL,
			Model:          DefaultLLMModel,
			MaxTokens:      DefaultLLMMaxTokens,
			Temperature:    DefaultLLMTemperature,
			TimeoutSeconds: DefaultLLMTimeoutSeconds,
			DisableSearch:  true,
		},
		Records: RecordsConfig{
			Backend:        DefaultRecordsBackend,
			TimeoutSeconds: DefaultRecordsTimeout,
			Airtable: AirtableConfig{
				BaseURL: DefaultAirtableBaseURL,
				Table:   DefaultAirtableTable,
			},
			SQLite: SQLiteConfig{
				Path: DefaultSQLitePath,
			},
		},
		Attachment: AttachmentConfig{
			Dropbox: DropboxConfig{
				Folder: "/receipts",
			},
		},
		Telegram: TelegramConfig{
			Enabled: true,
		},
		Whapi: WhapiConfig{
			BaseURL:      DefaultWhapiBaseURL,
			Poll:         true,
			PollInterval: DefaultWhapiPollInterval,
		},
		Kitchen: KitchenConfig{
			RatePerSec: DefaultNotifyRate,
		},
		Reconcile: ReconcileConfig{
			Interval:     DefaultReconcileInterval,
			SeenCapacity: DefaultSeenCapacity,
		},
		Inbound: InboundConfig{
			GateCapacity:  DefaultGateCapacity,
			ReminderDelay: DefaultReminderDelay,
			Workers:       4,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
