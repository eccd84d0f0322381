package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "guincheuse/internal/log"
)

const (
	DefaultListen             = "127.0.0.1:8080"
	DefaultTimezone           = "Europe/Paris"
	DefaultRevalidateSeconds  = 300
	DefaultHorizonDays        = 0
	DefaultRateLimitMillis    = 60000
	DefaultFromAddress        = "contact@laguincheuse.fr"
	DefaultMailProvider       = "smtp"
	DefaultRateLimitStoreKind = "memory"
)

// VenueConfig describes the restaurant itself. It is shown on pages and in
// confirmation e-mails.
type VenueConfig struct {
	Name         string `yaml:"name" json:"name"`
	Phone        string `yaml:"phone" json:"phone"`
	PhoneDisplay string `yaml:"phone_display" json:"phone_display"`
	Address      string `yaml:"address" json:"address"`
}

// EventsConfig configures the calendar feed behind the events page.
type EventsConfig struct {
	// FeedURL is the public .ics URL. Empty means the events page shows
	// the fallback programme.
	FeedURL string `yaml:"feed_url" json:"feed_url"`

	// RevalidateSeconds is how long a fetched feed body is reused before
	// it is requested again. Zero disables the cache.
	RevalidateSeconds int `yaml:"revalidate_seconds" json:"revalidate_seconds"`

	// HorizonDays bounds recurrence expansion into the future. Zero means
	// one calendar year.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// SMTPConfig holds the outbound mail relay settings. All four fields are
// required when Provider is "smtp".
type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     string `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
}

type MailConfig struct {
	// Provider selects the transport: "smtp" (default) or "sendgrid".
	Provider string `yaml:"provider" json:"provider"`
	// From is the venue mailbox; it also receives a copy of every request.
	From           string     `yaml:"from" json:"from"`
	SMTP           SMTPConfig `yaml:"smtp" json:"smtp"`
	SendGridAPIKey string     `yaml:"sendgrid_api_key" json:"-"`
}

// RateLimitConfig selects where last-submission timestamps live.
type RateLimitConfig struct {
	WindowMillis int `yaml:"window_ms" json:"window_ms"`
	// Store is "memory" (single process) or "redis" (shared between replicas).
	Store         string `yaml:"store" json:"store"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
}

type ReservationConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// SMSConfig enables an optional Twilio text alert to the venue for every
// accepted reservation. Disabled unless every field is set.
type SMSConfig struct {
	AccountSID string `yaml:"account_sid" json:"account_sid"`
	AuthToken  string `yaml:"auth_token" json:"-"`
	From       string `yaml:"from" json:"from"`
	To         string `yaml:"to" json:"to"`
}

func (s SMSConfig) Enabled() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.From != "" && s.To != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the site.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to display event dates and to run jobs.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Venue       VenueConfig       `yaml:"venue" json:"venue"`
	Events      EventsConfig      `yaml:"events" json:"events"`
	Mail        MailConfig        `yaml:"mail" json:"mail"`
	Reservation ReservationConfig `yaml:"reservation" json:"reservation"`
	SMS         SMSConfig         `yaml:"sms" json:"sms"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Venue: VenueConfig{
			Name:         "La Guincheuse",
			Phone:        "+33956671472",
			PhoneDisplay: "09 56 67 14 72",
			Address:      "266 Rue du Faubourg Saint-Martin, 75010 Paris",
		},
		Events: EventsConfig{
			RevalidateSeconds: DefaultRevalidateSeconds,
		},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Venue.Name == "" {
		c.Venue.Name = "La Guincheuse"
	}
	if c.Events.RevalidateSeconds < 0 {
		c.Events.RevalidateSeconds = DefaultRevalidateSeconds
	}
	if c.Events.HorizonDays < 0 {
		c.Events.HorizonDays = DefaultHorizonDays
	}

	switch strings.ToLower(c.Mail.Provider) {
	case "smtp", "sendgrid":
		c.Mail.Provider = strings.ToLower(c.Mail.Provider)
	default:
		c.Mail.Provider = DefaultMailProvider
	}
	if c.Mail.From == "" {
		c.Mail.From = DefaultFromAddress
	}

	rl := &c.Reservation.RateLimit
	if rl.WindowMillis <= 0 {
		rl.WindowMillis = DefaultRateLimitMillis
	}
	switch rl.Store {
	case "memory", "redis":
	default:
		rl.Store = DefaultRateLimitStoreKind
	}
}

// ApplyEnv overlays environment variables on top of the file values. The
// variable names match the deployment the site has always used, so an
// existing .env keeps working. Malformed numbers are ignored.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string, min int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < min {
			appLog.Warn("ignoring malformed numeric env value", "key", key, "value", v)
			return
		}
		*dst = n
	}

	setString(&c.Listen, "LISTEN")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Events.FeedURL, "GCAL_ICS_URL")
	setInt(&c.Events.RevalidateSeconds, "FETCH_REVALIDATE", 0)
	setInt(&c.Reservation.RateLimit.WindowMillis, "RESERVATION_RATE_LIMIT_MS", 1)

	setString(&c.Mail.SMTP.Host, "SMTP_HOST")
	setString(&c.Mail.SMTP.Port, "SMTP_PORT")
	setString(&c.Mail.SMTP.User, "SMTP_USER")
	setString(&c.Mail.SMTP.Password, "SMTP_PASS")
	setString(&c.Mail.From, "EMAIL_FROM")
	setString(&c.Mail.Provider, "MAIL_PROVIDER")
	setString(&c.Mail.SendGridAPIKey, "SENDGRID_API_KEY")

	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && v != "" {
		c.Reservation.RateLimit.RedisAddr = v
		c.Reservation.RateLimit.Store = "redis"
	}
	setString(&c.Reservation.RateLimit.RedisPassword, "REDIS_PASSWORD")

	setString(&c.SMS.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&c.SMS.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.SMS.From, "TWILIO_FROM_NUMBER")
	setString(&c.SMS.To, "VENUE_SMS_TO")

	c.Normalize()
}

// Load loads configuration from the given YAML path, then applies
// environment overrides (including a ./.env file when present).
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// .env is optional; production usually injects real env vars.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read .env", "err", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".guincheuse-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
