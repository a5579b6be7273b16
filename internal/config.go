package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	TwoFactor TwoFactorConfig   `yaml:"two_factor"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.TwoFactor.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// CORSOrigins lists the browser origins allowed to call the API.
	// Empty disables CORS handling.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how the acting user is determined:
//   - "disabled" (default): every request acts as DefaultActor, suitable for local dev.
//   - "token": Bearer token authentication; Tokens and/or TokensFile map
//     tokens to actor ids.
type AuthConfig struct {
	Mode         string            `yaml:"mode"`
	DefaultActor string            `yaml:"default_actor"`
	Tokens       map[string]string `yaml:"tokens"`
	TokensFile   string            `yaml:"tokens_file"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.DefaultActor, validation.When(c.Mode == AuthModeDisabled, validation.Required)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && len(c.Tokens) == 0 && c.TokensFile == "" {
		return fmt.Errorf("auth: mode is %q but no tokens are configured", AuthModeToken)
	}
	for token, actor := range c.Tokens {
		if token == "" || actor == "" {
			return fmt.Errorf("auth: tokens must map a non-empty token to a non-empty actor")
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// TwoFactorConfig controls the second authentication factor.
type TwoFactorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	CodeTTL     time.Duration `yaml:"code_ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	// PruneSchedule is the cron spec for deleting expired sessions.
	PruneSchedule string `yaml:"prune_schedule"`
}

// Validate validates the two-factor configuration.
func (c *TwoFactorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CodeTTL, validation.When(c.Enabled, validation.Required, validation.Min(time.Second))),
		validation.Field(&c.MaxAttempts, validation.When(c.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&c.PruneSchedule, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./linkpage.db",
		},
		Auth: AuthConfig{
			Mode:         AuthModeDisabled,
			DefaultActor: "local",
		},
		TwoFactor: TwoFactorConfig{
			CodeTTL:       5 * time.Minute,
			MaxAttempts:   5,
			PruneSchedule: "@every 1h",
		},
	}
}
