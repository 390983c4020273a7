package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lumensite/lumen/internal/server/auth"
	"github.com/lumensite/lumen/internal/server/upload"
	"github.com/lumensite/lumen/internal/utils"
)

const (
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRateLimit = "600-M"

	// DefaultReadTimeout bounds how long one request, body included, may take to arrive
	DefaultReadTimeout = 30 * time.Minute
)

type Config struct {
	HTTP      HTTPConfig    `mapstructure:"http"`
	Auth      auth.Config   `mapstructure:"auth"`
	Upload    upload.Config `mapstructure:"upload"`
	DataDir   string        `mapstructure:"data_dir"`
	LogDir    string        `mapstructure:"log_dir"`
	RateLimit string        `mapstructure:"rate_limit"` // ulule/limiter format, empty disables
}

type HTTPConfig struct {
	Addr        string        `mapstructure:"addr"`
	CertFile    string        `mapstructure:"cert_file"`
	KeyFile     string        `mapstructure:"key_file"`
	PublicURL   string        `mapstructure:"public_url"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// TLS reports whether both certificate and key are configured
func (c *HTTPConfig) TLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// BaseURL is the public url of the server, derived from Addr when unset
func (c *HTTPConfig) BaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	scheme := "http"
	if c.TLS() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Addr)
}

// DefaultConfig returns a configuration that keeps all state under dataDir
func DefaultConfig(dataDir string) *Config {
	return &Config{
		HTTP:      HTTPConfig{Addr: DefaultAddr, ReadTimeout: DefaultReadTimeout},
		Auth:      auth.Config{TokenIssuer: "lumen", AccessTokenExpiry: auth.DefaultAccessTokenExpiry},
		Upload:    *upload.DefaultConfig(dataDir),
		DataDir:   dataDir,
		LogDir:    filepath.Join(dataDir, "logs"),
		RateLimit: DefaultRateLimit,
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return errors.New("http.cert_file and http.key_file must be set together")
	}
	if c.HTTP.PublicURL != "" && !utils.IsValidURL(c.HTTP.PublicURL) {
		return fmt.Errorf("http.public_url %q is not a valid url", c.HTTP.PublicURL)
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("http.read_timeout must be positive")
	}
	if c.LogDir == "" {
		return errors.New("log_dir is required")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Upload.Validate(); err != nil {
		return err
	}
	return nil
}
