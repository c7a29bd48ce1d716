package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:    "123:abc",
			AdminIDs: []int64{1},
		},
		Panels: []PanelConfig{
			{Name: "panel-a", URL: "https://example.test/api", Token: "secret"},
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 10, cfg.Panels[0].Records)
	assert.Equal(t, 5, cfg.Panels[0].PollIntervalSeconds)
	assert.Equal(t, "data/numbers.json", cfg.Pool.StatePath)
	assert.Equal(t, 15, cfg.Pool.ReleaseTimeoutMinutes)
	assert.Equal(t, 60, cfg.Pool.SweepIntervalSeconds)
	require.NotNil(t, cfg.Pool.KeepUsedLocked)
	assert.True(t, *cfg.Pool.KeepUsedLocked)
	assert.Equal(t, "data/otp_history.db", cfg.History.Path)
}

func TestNormalizeRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeRejectsIncompletePanel(t *testing.T) {
	cfg := validConfig()
	cfg.Panels[0].Token = ""
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeRejectsDuplicatePanelNames(t *testing.T) {
	cfg := validConfig()
	cfg.Panels = append(cfg.Panels, PanelConfig{
		Name: "panel-a", URL: "https://other.test/api", Token: "secret2",
	})
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeWebhookModeRequiresEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "webhook"
	assert.Error(t, Normalize(cfg))

	cfg.Webhook = WebhookConfig{URL: "https://bot.test/hook", Listen: "0.0.0.0", Port: 8443}
	assert.NoError(t, Normalize(cfg))
}

func TestNormalizeAcceptsPollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "polling"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestNormalizeRejectsBadRateLimitExclusion(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.ExcludeUpdates = []string{"bogus"}
	assert.Error(t, Normalize(cfg))
}

func TestIsAdmin(t *testing.T) {
	tg := TelegramConfig{AdminIDs: []int64{10, 20}}
	assert.True(t, tg.IsAdmin(10))
	assert.False(t, tg.IsAdmin(30))
}
