package lumensdk

import (
	"time"

	"github.com/lumensite/lumen/internal/utils"
)

const (
	HeaderClientVersion = "X-Client-Version"
	HeaderDeviceID      = "X-Device-Id"
	HeaderChunkChecksum = "X-Chunk-Checksum"
)

const (
	DefaultRetryCount      = 3
	DefaultRetryMinBackoff = 500 * time.Millisecond
	DefaultRetryMaxBackoff = 10 * time.Second
	DefaultRequestTimeout  = 5 * time.Minute
)

// Config is the configuration of a LumenSDK client
type Config struct {
	BaseURL         string        // BaseURL is required
	AccessToken     string        // AccessToken is optional, sent as a bearer token
	RetryCount      int           // retries of chunk requests, 0 uses DefaultRetryCount, negative disables
	RetryMinBackoff time.Duration // first retry delay, doubled on every attempt
	RetryMaxBackoff time.Duration
	Timeout         time.Duration // per request
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	if !utils.IsValidURL(c.BaseURL) {
		return ErrInvalidServerURL
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.RetryCount == 0 {
		out.RetryCount = DefaultRetryCount
	} else if out.RetryCount < 0 {
		out.RetryCount = 0
	}
	if out.RetryMinBackoff <= 0 {
		out.RetryMinBackoff = DefaultRetryMinBackoff
	}
	if out.RetryMaxBackoff < out.RetryMinBackoff {
		out.RetryMaxBackoff = max(DefaultRetryMaxBackoff, out.RetryMinBackoff)
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultRequestTimeout
	}
	return &out
}
