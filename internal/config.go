package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/retry"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Remote store backends.
const (
	RemoteBackendHTTP = "http"
	RemoteBackendFile = "file"
)

// Identity modes.
const (
	IdentityModeStatic = "static"
	IdentityModeRemote = "remote"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Remote   RemoteConfig      `yaml:"remote"`
	Cache    CacheConfig       `yaml:"cache"`
	Sync     SyncConfig        `yaml:"sync"`
	Identity IdentityConfig    `yaml:"identity"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// RemoteConfig selects and configures the remote document store.
//
// Backend controls which store is used:
//   - "http": a remoteStorage-style HTTP key-value server; BaseURL must be set.
//   - "file": a single local JSON file, useful for development and offline
//     use; Path must be set.
type RemoteConfig struct {
	Backend string `yaml:"backend"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Path    string `yaml:"path"`
}

// Validate validates the remote store configuration.
func (c *RemoteConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = RemoteBackendFile
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(RemoteBackendHTTP, RemoteBackendFile)),
	); err != nil {
		return err
	}
	if c.Backend == RemoteBackendHTTP && c.BaseURL == "" {
		return fmt.Errorf("remote: backend is %q but base_url is empty", RemoteBackendHTTP)
	}
	if c.Backend == RemoteBackendFile && c.Path == "" {
		return fmt.Errorf("remote: backend is %q but path is empty", RemoteBackendFile)
	}
	return nil
}

// CacheConfig holds the local SQLite snapshot cache configuration.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig tunes the debounce scheduler and the retry policy. Durations
// are given in milliseconds so they round-trip through YAML as plain ints.
type SyncConfig struct {
	DebounceMS    int   `yaml:"debounce_ms"`
	RetryAttempts int   `yaml:"retry_attempts"`
	RetryDelaysMS []int `yaml:"retry_delays_ms"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
		validation.Field(&c.RetryAttempts, validation.Min(0)),
	)
}

// Debounce returns the quiet period between the last edit and the save.
func (c *SyncConfig) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// RetryPolicy builds the retry policy, falling back to the defaults when
// the fields are unset.
func (c *SyncConfig) RetryPolicy() retry.Policy {
	if c.RetryAttempts <= 0 {
		return retry.DefaultPolicy()
	}
	delays := make([]time.Duration, 0, len(c.RetryDelaysMS))
	for _, ms := range c.RetryDelaysMS {
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	return retry.NewPolicy(c.RetryAttempts, delays)
}

// IdentityConfig controls how the cache-scoping identity is resolved.
//
//   - "static" (default): Name is used as-is.
//   - "remote": the identity is fetched from URL at startup; Fallback is
//     used when the provider is unreachable so the app can start offline.
type IdentityConfig struct {
	Mode     string `yaml:"mode"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Fallback string `yaml:"fallback"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = IdentityModeStatic
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(IdentityModeStatic, IdentityModeRemote)),
	); err != nil {
		return err
	}
	if c.Mode == IdentityModeStatic && c.Name == "" {
		return fmt.Errorf("identity: mode is %q but name is empty", IdentityModeStatic)
	}
	if c.Mode == IdentityModeRemote && c.URL == "" {
		return fmt.Errorf("identity: mode is %q but url is empty", IdentityModeRemote)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
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
		Remote: RemoteConfig{
			Backend: RemoteBackendFile,
			Path:    "./laguz-store.json",
		},
		Cache: CacheConfig{
			Path: "./laguz-cache.db",
		},
		Sync: SyncConfig{
			DebounceMS:    2000,
			RetryAttempts: 3,
			RetryDelaysMS: []int{300, 800, 1500},
		},
		Identity: IdentityConfig{
			Mode: IdentityModeStatic,
			Name: "local",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
