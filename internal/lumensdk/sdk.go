package lumensdk

import (
	"context"
	"errors"
	"net/http"

	"github.com/imroc/req/v3"
	"github.com/lumensite/lumen/internal/utils"
	"github.com/lumensite/lumen/internal/version"
)

// LumenSDK is the client of the lumen upload api
type LumenSDK struct {
	client  *req.Client
	config  *Config
	Uploads *UploadAPI
}

func New(config *Config) (*LumenSDK, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderClientVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, utils.HWID).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(config.RetryCount).
		SetCommonRetryBackoffInterval(config.RetryMinBackoff, config.RetryMaxBackoff).
		SetCommonRetryCondition(shouldRetry).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if config.AccessToken != "" {
		client.SetCommonBearerAuthToken(config.AccessToken)
	}

	return &LumenSDK{
		client:  client,
		config:  config,
		Uploads: newUploadAPI(client, config),
	}, nil
}

// Close releases idle connections
func (s *LumenSDK) Close() {
	s.client.CloseIdleConnections()
}

// shouldRetry retries transport failures, 429 and 5xx. Other statuses are final.
func shouldRetry(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil || resp.Response == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}
