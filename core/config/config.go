package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token    string  `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"TELEGRAM_ADMIN_IDS"`
	// LogChatIDs lists chats that receive a mirror of every forwarded OTP.
	LogChatIDs []int64 `yaml:"log_chat_ids" envconfig:"TELEGRAM_LOG_CHAT_IDS"`
	RunMode    string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// PanelConfig describes one external SMS-gateway panel to poll.
type PanelConfig struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// Records is the page size requested per poll; the poller only acts on
	// the latest record of the response.
	Records             int `yaml:"records"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// PoolConfig controls the number pool store and lease reclamation.
type PoolConfig struct {
	StatePath             string `yaml:"state_path" envconfig:"POOL_STATE_PATH"`
	ReleaseTimeoutMinutes int    `yaml:"release_timeout_minutes" envconfig:"RELEASE_TIMEOUT_MINUTES"`
	SweepIntervalSeconds  int    `yaml:"sweep_interval_seconds" envconfig:"POOL_SWEEP_INTERVAL_SECONDS"`
	// KeepUsedLocked moves a number to the terminal "used" state once an OTP
	// is delivered on it. When disabled the record stays assigned with the
	// OTP recorded. Defaults to true.
	KeepUsedLocked *bool `yaml:"keep_used_locked" envconfig:"POOL_KEEP_USED_LOCKED"`
}

// HistoryConfig points at the sqlite archive of delivered OTPs.
type HistoryConfig struct {
	Path string `yaml:"path" envconfig:"HISTORY_DB_PATH"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full process configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Panels    []PanelConfig   `yaml:"panels"`
	Pool      PoolConfig      `yaml:"pool"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	seen := make(map[string]struct{}, len(cfg.Panels))
	for i := range cfg.Panels {
		p := &cfg.Panels[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" || strings.TrimSpace(p.URL) == "" || strings.TrimSpace(p.Token) == "" {
			return fmt.Errorf("panels[%d]: name, url and token are required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("panels[%d]: duplicate panel name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Records <= 0 {
			p.Records = 10
		}
		if p.PollIntervalSeconds <= 0 {
			p.PollIntervalSeconds = 5
		}
	}

	if strings.TrimSpace(cfg.Pool.StatePath) == "" {
		cfg.Pool.StatePath = "data/numbers.json"
	}
	if cfg.Pool.ReleaseTimeoutMinutes <= 0 {
		cfg.Pool.ReleaseTimeoutMinutes = 15
	}
	if cfg.Pool.SweepIntervalSeconds <= 0 {
		cfg.Pool.SweepIntervalSeconds = 60
	}
	if cfg.Pool.KeepUsedLocked == nil {
		locked := true
		cfg.Pool.KeepUsedLocked = &locked
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "data/otp_history.db"
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

// IsAdmin reports whether the given Telegram user id is in the admin list.
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
