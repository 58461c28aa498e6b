package ghpages

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/common/config"
)

const (
	DefaultBaseURL = "https://builder.csbops.io/gh-pages"
	DefaultTimeout = 30 * time.Second
)

var (
	errInvalidVal = errors.New("invalid value")

	ErrAuthConfigured = errors.New("authorization must come from the token source")
)

type Config struct {
	// ClientConfig provides the HTTP transport options (TLS, proxy, extra headers).
	// Authorization settings are rejected; it comes from the token source.
	ClientConfig config.HTTPClientConfig `yaml:"clientConfig,omitempty"`
	// Additional HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`
	// Base URL of the GitHub Pages build service.
	BaseURL string        `yaml:"baseURL,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %w", errInvalidVal)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("baseURL must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("baseURL must use http or https: %w", errInvalidVal)
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.ClientConfig.Validate(); err != nil {
		return fmt.Errorf("clientConfig: %w", err)
	}
	return nil
}

// validateAuth rejects every way of setting Authorization other than the
// token source. The transport would otherwise add it when the token is empty.
func (c *Config) validateAuth() error {
	cc := c.ClientConfig
	switch {
	case cc.BasicAuth != nil:
		return fmt.Errorf("clientConfig.basic_auth is not supported, use the token source: %w", ErrAuthConfigured)
	case cc.Authorization != nil:
		return fmt.Errorf("clientConfig.authorization is not supported, use the token source: %w", ErrAuthConfigured)
	case cc.OAuth2 != nil:
		return fmt.Errorf("clientConfig.oauth2 is not supported, use the token source: %w", ErrAuthConfigured)
	case cc.BearerToken != "" || cc.BearerTokenFile != "":
		return fmt.Errorf("clientConfig.bearer_token is not supported, use the token source: %w", ErrAuthConfigured)
	}

	for name := range c.Headers {
		if http.CanonicalHeaderKey(name) == "Authorization" {
			return fmt.Errorf("headers: %w", ErrAuthConfigured)
		}
	}
	if cc.HTTPHeaders != nil {
		for name := range cc.HTTPHeaders.Headers {
			if http.CanonicalHeaderKey(name) == "Authorization" {
				return fmt.Errorf("clientConfig.http_headers: %w", ErrAuthConfigured)
			}
		}
	}
	return nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	// Set headers from cfg.Headers into cfg.ClientConfig.HTTPHeaders
	if cfg.ClientConfig.HTTPHeaders == nil {
		cfg.ClientConfig.HTTPHeaders = &config.Headers{
			Headers: make(map[string]config.Header),
		}
	}
	for k, v := range cfg.Headers {
		cfg.ClientConfig.HTTPHeaders.Headers[k] = config.Header{Values: []string{v}}
	}

	httpClient, err := config.NewClientFromConfig(cfg.ClientConfig, "ghpages")
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	httpClient.Timeout = cfg.Timeout

	return httpClient, nil
}
