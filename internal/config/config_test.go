package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultRevalidateSeconds, cfg.Events.RevalidateSeconds)
	assert.Equal(t, DefaultRateLimitMillis, cfg.Reservation.RateLimit.WindowMillis)
	assert.Equal(t, DefaultFromAddress, cfg.Mail.From)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("listen: \":9000\"\nevents:\n  feed_url: https://example.com/cal.ics\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "https://example.com/cal.ics", cfg.Events.FeedURL)
	assert.Equal(t, DefaultRevalidateSeconds, cfg.Events.RevalidateSeconds)
	assert.Equal(t, "La Guincheuse", cfg.Venue.Name)
	assert.Equal(t, "smtp", cfg.Mail.Provider)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GCAL_ICS_URL", "https://calendar.example/basic.ics")
	t.Setenv("FETCH_REVALIDATE", "0")
	t.Setenv("RESERVATION_RATE_LIMIT_MS", "1500")
	t.Setenv("SMTP_HOST", "smtp.example")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "bot")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("EMAIL_FROM", "resa@example.fr")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "https://calendar.example/basic.ics", cfg.Events.FeedURL)
	assert.Equal(t, 0, cfg.Events.RevalidateSeconds)
	assert.Equal(t, 1500, cfg.Reservation.RateLimit.WindowMillis)
	assert.Equal(t, SMTPConfig{Host: "smtp.example", Port: "465", User: "bot", Password: "secret"}, cfg.Mail.SMTP)
	assert.Equal(t, "resa@example.fr", cfg.Mail.From)
	assert.Equal(t, "redis", cfg.Reservation.RateLimit.Store)
	assert.Equal(t, "redis:6379", cfg.Reservation.RateLimit.RedisAddr)
}

func TestApplyEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FETCH_REVALIDATE", "-5")
	t.Setenv("RESERVATION_RATE_LIMIT_MS", "soon")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, DefaultRevalidateSeconds, cfg.Events.RevalidateSeconds)
	assert.Equal(t, DefaultRateLimitMillis, cfg.Reservation.RateLimit.WindowMillis)
}

func TestSMSEnabled(t *testing.T) {
	assert.False(t, SMSConfig{AccountSID: "AC1", AuthToken: "t", From: "+1"}.Enabled())
	assert.True(t, SMSConfig{AccountSID: "AC1", AuthToken: "t", From: "+1", To: "+2"}.Enabled())
}
