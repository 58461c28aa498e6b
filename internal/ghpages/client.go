package ghpages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sberz/sandbox-pages/internal/templates"
	"github.com/sberz/sandbox-pages/internal/token"
)

var (
	ErrSiteIDRequired    = errors.New("site id is required")
	ErrSandboxIDRequired = errors.New("sandbox id is required")
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sandboxpages_builder_request_duration_seconds",
	Help:    "Duration of requests to the GitHub Pages build service",
	Buckets: prometheus.DefBuckets,
}, []string{"operation", "code"})

// maxBodySize bounds how much of an upstream response is read.
const maxBodySize = 10 << 20

// Sandbox identifies the project being published.
type Sandbox struct {
	ID       string `json:"id"`
	Template string `json:"template"`
}

// Response is the build service reply to a deployment trigger.
type Response struct {
	Header     http.Header           `json:"-"`
	Body       json.RawMessage       `json:"body,omitempty"`
	Request    templates.BuildParams `json:"request"`
	StatusCode int                   `json:"statusCode"`
}

// StatusError is returned when the build service answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	Body       []byte
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Client talks to the GitHub Pages build service on behalf of a sandbox
// owner. Every call authenticates with a token from the configured Source.
type Client struct {
	httpClient *http.Client
	tokens     token.Source
	templates  *templates.Registry
	baseURL    string
}

func NewClient(cfg Config, tokens token.Source, registry *templates.Registry) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if tokens == nil {
		tokens = token.Static("")
	}
	if registry == nil {
		var err error
		registry, err = templates.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to create template registry: %w", err)
		}
	}

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		templates:  registry,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// GetSite returns the build service's view of the site, passed through as-is.
func (c *Client) GetSite(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrSiteIDRequired
	}

	res, err := c.do(ctx, "get_site", http.MethodGet, c.siteURL(id), nil)
	if err != nil {
		return nil, err
	}
	return res.body, nil
}

// GetLogs returns the build status and logs of the site, passed through as-is.
func (c *Client) GetLogs(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrSiteIDRequired
	}

	res, err := c.do(ctx, "get_logs", http.MethodGet, c.siteURL(id)+"/status", nil)
	if err != nil {
		return nil, err
	}
	return res.body, nil
}

// Deploy triggers a build of the sandbox and publishes it under username's
// GitHub Pages.
func (c *Client) Deploy(ctx context.Context, sandbox Sandbox, username string) (*Response, error) {
	if sandbox.ID == "" {
		return nil, ErrSandboxIDRequired
	}

	tpl, known := c.templates.Lookup(sandbox.Template)
	if !known {
		slog.WarnContext(ctx, "Unknown template, using default build settings",
			"sandbox_id", sandbox.ID,
			"template", sandbox.Template,
		)
		tpl = c.templates.Get(sandbox.Template)
	}
	params, err := tpl.BuildParams(sandbox.ID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to derive build params: %w", err)
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deploy request: %w", err)
	}

	slog.DebugContext(ctx, "Triggering deployment",
		"sandbox_id", sandbox.ID,
		"template", tpl.Name,
		"dist", params.Dist,
		"build_command", params.BuildCommand,
	)

	res, err := c.do(ctx, "deploy", http.MethodPost, c.siteURL(sandbox.ID), payload)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: res.statusCode,
		Header:     res.header,
		Body:       res.body,
		Request:    params,
	}, nil
}

func (c *Client) siteURL(id string) string {
	return c.baseURL + "/" + url.PathEscape(id)
}

type rawResponse struct {
	header     http.Header
	body       []byte
	statusCode int
}

func (c *Client) do(ctx context.Context, operation, method, target string, body []byte) (*rawResponse, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	log := slog.With("operation", operation, "method", method, "url", target)

	start := time.Now()
	code := "error"
	defer func() {
		requestDuration.WithLabelValues(operation, code).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WarnContext(ctx, "Build service request failed", "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	code = strconv.Itoa(resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WarnContext(ctx, "Build service returned an error status", "status", resp.StatusCode)
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	log.DebugContext(ctx, "Build service request succeeded", "status", resp.StatusCode, "duration", time.Since(start))

	return &rawResponse{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       respBody,
	}, nil
}
