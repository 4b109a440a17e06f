package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Address is the TCP listen address (e.g., ":8000").
	Address string `mapstructure:"address" yaml:"address"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`

	// AllowedOrigins lists the browser origins allowed by CORS.
	// A single "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AuthConfig holds access token settings.
type AuthConfig struct {
	// SigningSeed is a hex-encoded 32-byte Ed25519 seed. When empty the
	// seed comes from the system keyring (UseKeyring) or is generated
	// per process.
	SigningSeed string `mapstructure:"signing_seed" yaml:"signing_seed"`

	UseKeyring      bool   `mapstructure:"use_keyring" yaml:"use_keyring"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes" yaml:"token_ttl_minutes"`
	CookieName      string `mapstructure:"cookie_name" yaml:"cookie_name"`
	CookieSecure    bool   `mapstructure:"cookie_secure" yaml:"cookie_secure"`
}

// SMTPConfig holds outbound mail settings. An empty Host disables delivery.
type SMTPConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       string `mapstructure:"port" yaml:"port"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	From       string `mapstructure:"from" yaml:"from"`
	TLS        bool   `mapstructure:"tls" yaml:"tls"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// AccountsConfig holds account provisioning settings.
type AccountsConfig struct {
	// LoginURL is linked from provisioning emails.
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`

	// RevealPasswordOnMailFailure returns a provisioned account's
	// temporary password in the API response when email delivery fails.
	RevealPasswordOnMailFailure bool `mapstructure:"reveal_password_on_mail_failure" yaml:"reveal_password_on_mail_failure"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level service configuration.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp"`
	Accounts AccountsConfig `mapstructure:"accounts" yaml:"accounts"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskflow/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskflow", "config.yaml")
}

// defaults maps config keys to their default values. They are applied
// through viper so environment overrides and partial files compose.
// Every key needs an entry (even an empty one): viper only consults the
// environment for keys it already knows when unmarshaling.
var defaults = map[string]any{
	"server.address":                           ":8000",
	"server.shutdown_timeout_sec":               10,
	"server.allowed_origins":                    []string{"http://localhost:5173"},
	"database.path":                             "taskflow.db",
	"auth.signing_seed":                         "",
	"auth.use_keyring":                          false,
	"auth.token_ttl_minutes":                    24 * 60,
	"auth.cookie_name":                          "accessToken",
	"auth.cookie_secure":                        false,
	"smtp.host":                                 "",
	"smtp.port":                                 "587",
	"smtp.username":                             "",
	"smtp.password":                             "",
	"smtp.from":                                 "",
	"smtp.tls":                                  false,
	"smtp.timeout_sec":                          15,
	"accounts.login_url":                        "http://localhost:5173/login",
	"accounts.reveal_password_on_mail_failure": true,
	"log.level":                                 "info",
	"log.format":                                "json",
}

// newViper returns a viper instance with defaults and TASKFLOW_* env
// overrides (e.g., TASKFLOW_SERVER_ADDRESS).
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("taskflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	cfg := &AppConfig{}
	// Defaults and env overrides only; unmarshaling from viper without a
	// file cannot fail on well-typed defaults.
	_ = newViper().Unmarshal(cfg)
	return cfg
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *AppConfig) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("server.shutdown_timeout_sec must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name must not be empty")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("database", cfg.Database)
	v.Set("auth", cfg.Auth)
	v.Set("smtp", cfg.SMTP)
	v.Set("accounts", cfg.Accounts)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
