// Package config loads the runtime settings of trustboard.
//
// Values come, in order of precedence, from command line flags bound into
// viper, TRUSTBOARD_* environment variables, the legacy unprefixed
// variables (DATABASE_URL, PORT, SESSION_SECRET, NODE_ENV, SMTP_*, BASE_URL),
// an optional config file, and finally the defaults below. Keys use the
// flag spelling, for example "db-url" or "upload-max-bytes".
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stokaro/trustboard/core/platform"
	"github.com/stokaro/trustboard/logging"
	"github.com/stokaro/trustboard/mailer"
	"github.com/stokaro/trustboard/uploads"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TRUSTBOARD"

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DevSessionSecret is accepted outside production only.
const DevSessionSecret = "community-secret-key-change-in-production"

// Keys.
const (
	KeyListen                 = "listen"
	KeyPort                   = "port"
	KeyDBURL                  = "db-url"
	KeyDBDriver               = "db-driver"
	KeySessionSecret          = "session-secret"
	KeySessionTTL             = "session-ttl"
	KeySessionCleanupInterval = "session-cleanup-interval"
	KeyCookieSecure           = "cookie-secure"
	KeyEnv                    = "env"
	KeyBaseURL                = "base-url"
	KeySMTPHost               = "smtp-host"
	KeySMTPPort               = "smtp-port"
	KeySMTPUsername           = "smtp-username"
	KeySMTPPassword           = "smtp-password"
	KeySMTPFrom               = "smtp-from"
	KeyUploadDir              = "upload-dir"
	KeyUploadMaxBytes         = "upload-max-bytes"
	KeyUploadMaxFiles         = "upload-max-files"
	KeyUploadAllowedExt       = "upload-allowed-ext"
	KeyAdminUsername          = "admin-username"
	KeyAdminEmail             = "admin-email"
	KeyAdminPassword          = "admin-password"
	KeyLogLevel               = "log-level"
	KeyLogFormat              = "log-format"
	KeyCacheTTL               = "cache-ttl"
	KeyShutdownTimeout        = "shutdown-timeout"
)

const defaultListen = ":4200"

var defaults = map[string]any{
	KeyDBURL:                  "community.db",
	KeySessionSecret:          DevSessionSecret,
	KeySessionTTL:             7 * 24 * time.Hour,
	KeySessionCleanupInterval: time.Hour,
	KeyCookieSecure:           false,
	KeyEnv:                    EnvDevelopment,
	KeySMTPPort:               587,
	KeyUploadDir:              "uploads",
	KeyUploadMaxBytes:         uploads.DefaultMaxBytes,
	KeyUploadMaxFiles:         uploads.DefaultMaxFiles,
	KeyUploadAllowedExt:       strings.Join(uploads.DefaultAllowedExt, ","),
	KeyAdminUsername:          "admin",
	KeyAdminEmail:             "admin@community.com",
	KeyAdminPassword:          "Admin@123456",
	KeyLogLevel:               "info",
	KeyLogFormat:              "json",
	KeyCacheTTL:               60 * time.Second,
	KeyShutdownTimeout:        10 * time.Second,
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	KeyDBURL:         "DATABASE_URL",
	KeyPort:          "PORT",
	KeySessionSecret: "SESSION_SECRET",
	KeyEnv:           "NODE_ENV",
	KeyBaseURL:       "BASE_URL",
	KeySMTPHost:      "SMTP_HOST",
	KeySMTPPort:      "SMTP_PORT",
	KeySMTPUsername:  "SMTP_USER",
	KeySMTPPassword:  "SMTP_PASS",
	KeySMTPFrom:      "SMTP_FROM",
}

// Config is the validated configuration.
type Config struct {
	Listen          string
	Env             string
	BaseURL         string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration

	Database Database
	Session  Session
	Admin    Admin
	SMTP     mailer.SMTPConfig
	Uploads  uploads.Options
	Log      logging.Options
}

// Database selects the store.
type Database struct {
	URL    string
	Driver string
}

// Session configures the login cookie and its server side record.
type Session struct {
	Secret          string
	TTL             time.Duration
	CleanupInterval time.Duration
	CookieSecure    bool
}

// Admin is the bootstrap administrator seeded at startup.
type Admin struct {
	Username string
	Email    string
	Password string
}

// Production reports whether the process runs in production mode. Every
// other environment name behaves like development.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// the prefixed name wins over the legacy one
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
	return v
}

// ReadFile merges a YAML, TOML or JSON config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load builds and validates a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Listen:          listenAddr(v.GetString(KeyListen), v.GetString(KeyPort)),
		Env:             strings.ToLower(strings.TrimSpace(v.GetString(KeyEnv))),
		BaseURL:         strings.TrimRight(strings.TrimSpace(v.GetString(KeyBaseURL)), "/"),
		CacheTTL:        v.GetDuration(KeyCacheTTL),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		Database: Database{
			URL:    strings.TrimSpace(v.GetString(KeyDBURL)),
			Driver: strings.TrimSpace(v.GetString(KeyDBDriver)),
		},
		Session: Session{
			Secret:          v.GetString(KeySessionSecret),
			TTL:             v.GetDuration(KeySessionTTL),
			CleanupInterval: v.GetDuration(KeySessionCleanupInterval),
			CookieSecure:    v.GetBool(KeyCookieSecure),
		},
		Admin: Admin{
			Username: v.GetString(KeyAdminUsername),
			Email:    v.GetString(KeyAdminEmail),
			Password: v.GetString(KeyAdminPassword),
		},
		SMTP: mailer.SMTPConfig{
			Host:     v.GetString(KeySMTPHost),
			Port:     v.GetInt(KeySMTPPort),
			Username: v.GetString(KeySMTPUsername),
			Password: v.GetString(KeySMTPPassword),
			From:     v.GetString(KeySMTPFrom),
		},
		Uploads: uploads.Options{
			Dir:        v.GetString(KeyUploadDir),
			MaxBytes:   v.GetInt64(KeyUploadMaxBytes),
			MaxFiles:   v.GetInt(KeyUploadMaxFiles),
			AllowedExt: splitList(v.GetStringSlice(KeyUploadAllowedExt)),
		},
		Log: logging.Options{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyDBURL))
	} else if platform.DialectFromURL(c.Database.URL) == "" {
		errs = append(errs, fmt.Errorf("%s: unsupported database %q", KeyDBURL, c.Database.URL))
	}
	if c.Session.Secret == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeySessionSecret))
	} else if c.Production() && c.Session.Secret == DevSessionSecret {
		errs = append(errs, fmt.Errorf("%s must be changed in production", KeySessionSecret))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeySessionTTL))
	}
	if c.Uploads.Dir == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyUploadDir))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyUploadMaxBytes))
	}
	if c.Uploads.MaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyUploadMaxFiles))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyCacheTTL))
	}
	return errors.Join(errs...)
}

func listenAddr(listen, port string) string {
	listen = strings.TrimSpace(listen)
	port = strings.TrimSpace(port)
	switch {
	case listen != "":
		return listen
	case port != "":
		return ":" + port
	default:
		return defaultListen
	}
}

// splitList flattens comma separated entries.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
