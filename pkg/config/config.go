package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	EnvCredentials = "GOOGLE_CREDENTIALS_JSON"
	EnvSheetID     = "SHEET_ID"
)

// ErrMissingCredentials is fatal: nothing can run without the sheet.
var ErrMissingCredentials = errors.New("missing " + EnvCredentials + " or " + EnvSheetID)

type ServerConfig struct {
	ListenAddress string
}

type SheetConfig struct {
	UserTable         string
	ConfigTable       string
	Timezone          string
	RequestsPerMinute int
}

type CacheConfig struct {
	TTL string // Go duration, e.g. "60s"
}

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff string
	MaxBackoff     string
}

type LoginConfig struct {
	MaxFailures     int
	LockoutDuration string
}

type configStore struct {
	Server ServerConfig
	Sheet  SheetConfig
	Cache  CacheConfig
	Retry  RetryConfig
	Login  LoginConfig
}

// Credentials come from the environment only, never the file.
type Credentials struct {
	JSON    []byte
	SheetID string
}

type Config struct {
	Filename string
	Store    configStore
}

func defaults() configStore {
	return configStore{
		Server: ServerConfig{ListenAddress: ":8080"},
		Sheet: SheetConfig{
			UserTable:         "User",
			ConfigTable:       "Config",
			Timezone:          "Asia/Ho_Chi_Minh",
			RequestsPerMinute: 60,
		},
		Cache: CacheConfig{TTL: "60s"},
		Retry: RetryConfig{MaxAttempts: 3, InitialBackoff: "2s", MaxBackoff: "10s"},
		Login: LoginConfig{MaxFailures: 5, LockoutDuration: "5m"},
	}
}

// Write the current config out to a toml file.
func (c *Config) Save() error {
	b, err := toml.Marshal(c.Store)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Filename, b, 0644)
}

// Load the current config from a toml file. Keys missing from the file keep
// their defaults.
func (c *Config) Load() error {
	b, err := os.ReadFile(c.Filename)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, &c.Store)
}

// New loads filename, writing a default file when none exists.
func New(filename string) (*Config, error) {
	c := &Config{
		Filename: filename,
		Store:    defaults(),
	}
	if err := c.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", filename, err)
		}
		if err := c.Save(); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every duration and the timezone parse.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"cache ttl":        c.Store.Cache.TTL,
		"initial backoff":  c.Store.Retry.InitialBackoff,
		"max backoff":      c.Store.Retry.MaxBackoff,
		"lockout duration": c.Store.Login.LockoutDuration,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	if _, err := time.LoadLocation(c.Store.Sheet.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Store.Sheet.Timezone, err)
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration       { return mustDuration(c.Store.Cache.TTL) }
func (c *Config) InitialBackoff() time.Duration { return mustDuration(c.Store.Retry.InitialBackoff) }
func (c *Config) MaxBackoff() time.Duration     { return mustDuration(c.Store.Retry.MaxBackoff) }
func (c *Config) LockoutDuration() time.Duration {
	return mustDuration(c.Store.Login.LockoutDuration)
}

// Location is the bank's timezone; Validate has already vetted it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Store.Sheet.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// LoadCredentials reads the sheet credentials from the environment, after
// loading envFile when it exists.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Credentials{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	creds := Credentials{
		JSON:    []byte(os.Getenv(EnvCredentials)),
		SheetID: os.Getenv(EnvSheetID),
	}
	if len(creds.JSON) == 0 || creds.SheetID == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}
