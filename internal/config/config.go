package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/ehr/carewizard/internal/platform/hipaa"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	AuthMode           string        `mapstructure:"AUTH_MODE"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	DefaultTenant      string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	HIPAAEncryptionKey string        `mapstructure:"HIPAA_ENCRYPTION_KEY"`
	HIPAAKeyVersion    int           `mapstructure:"HIPAA_KEY_VERSION"`
	HIPAAPreviousKeys  []string      `mapstructure:"HIPAA_PREVIOUS_KEYS"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	DraftBackend       string        `mapstructure:"DRAFT_BACKEND"`
	DraftSQLitePath    string        `mapstructure:"DRAFT_SQLITE_PATH"`
	DraftMaxBytes      int           `mapstructure:"DRAFT_MAX_BYTES"`
	DraftDebounce      time.Duration `mapstructure:"DRAFT_DEBOUNCE"`
	SessionIdleTTL     time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	SubmitMode         string        `mapstructure:"SUBMIT_MODE"`
	SubmitURL          string        `mapstructure:"SUBMIT_URL"`
	SubmitToken        string        `mapstructure:"SUBMIT_TOKEN"`
	SubmitTimeout      time.Duration `mapstructure:"SUBMIT_TIMEOUT"`
	Timezone           string        `mapstructure:"TIMEZONE"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "DEFAULT_TENANT", "CORS_ORIGINS",
	"HIPAA_ENCRYPTION_KEY", "HIPAA_KEY_VERSION", "HIPAA_PREVIOUS_KEYS", "BODY_LIMIT", "DRAFT_BACKEND", "DRAFT_SQLITE_PATH",
	"DRAFT_MAX_BYTES", "DRAFT_DEBOUNCE", "SESSION_IDLE_TTL", "SUBMIT_MODE", "SUBMIT_URL",
	"SUBMIT_TOKEN", "SUBMIT_TIMEOUT", "TIMEZONE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("HIPAA_KEY_VERSION", 1)
	v.SetDefault("BODY_LIMIT", "30M")
	v.SetDefault("DRAFT_BACKEND", "memory")
	v.SetDefault("DRAFT_SQLITE_PATH", "drafts.db")
	v.SetDefault("DRAFT_MAX_BYTES", 5<<20)
	v.SetDefault("DRAFT_DEBOUNCE", "500ms")
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("SUBMIT_MODE", "local")
	v.SetDefault("SUBMIT_TIMEOUT", "30s")
	v.SetDefault("TIMEZONE", "Europe/London")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if len(cfg.HIPAAPreviousKeys) == 1 && strings.Contains(cfg.HIPAAPreviousKeys[0], ",") {
		cfg.HIPAAPreviousKeys = strings.Split(cfg.HIPAAPreviousKeys[0], ",")
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in DEVELOPMENT mode (ENV=development): every request gets admin access; do not use in production")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development means "development" (no
// auth, all requests get admin) and anything else means "external".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// Location resolves TIMEZONE, the zone wall-clock visit times are entered in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// Keyring builds the draft sealing keyring from HIPAA_ENCRYPTION_KEY and
// HIPAA_PREVIOUS_KEYS ("version:hex" pairs). It returns nil when no key is
// configured.
func (c *Config) Keyring() (*hipaa.Keyring, error) {
	if c.HIPAAEncryptionKey == "" {
		return nil, nil
	}
	key, err := hipaa.ParseKey(c.HIPAAEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY: %w", err)
	}
	version := c.HIPAAKeyVersion
	if version == 0 {
		version = 1
	}
	k, err := hipaa.NewKeyring(key, version)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_KEY_VERSION: %w", err)
	}
	for _, entry := range c.HIPAAPreviousKeys {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		v, prev, err := hipaa.ParseVersionedKey(entry)
		if err != nil {
			return nil, fmt.Errorf("HIPAA_PREVIOUS_KEYS: %w", err)
		}
		if err := k.AddPreviousKey(prev, v); err != nil {
			return nil, fmt.Errorf("HIPAA_PREVIOUS_KEYS: %w", err)
		}
	}
	return k, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}

	// HIPAA encryption key validation
	if c.IsProduction() && c.HIPAAEncryptionKey == "" {
		return fmt.Errorf("HIPAA_ENCRYPTION_KEY is required in production")
	}
	if c.HIPAAEncryptionKey != "" {
		if _, err := c.Keyring(); err != nil {
			return err
		}
	} else if len(c.HIPAAPreviousKeys) > 0 {
		return fmt.Errorf("HIPAA_PREVIOUS_KEYS requires HIPAA_ENCRYPTION_KEY")
	}

	switch c.DraftBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DRAFT_BACKEND is \"postgres\"")
		}
	case "sqlite":
		if c.DraftSQLitePath == "" {
			return fmt.Errorf("DRAFT_SQLITE_PATH is required when DRAFT_BACKEND is \"sqlite\"")
		}
	default:
		return fmt.Errorf("DRAFT_BACKEND must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.DraftBackend)
	}

	switch c.SubmitMode {
	case "local":
		if c.IsProduction() && c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for local submissions in production")
		}
	case "remote":
		if c.SubmitURL == "" {
			return fmt.Errorf("SUBMIT_URL is required when SUBMIT_MODE is \"remote\"")
		}
	default:
		return fmt.Errorf("SUBMIT_MODE must be \"local\" or \"remote\", got %q", c.SubmitMode)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
