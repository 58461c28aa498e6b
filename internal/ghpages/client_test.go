package ghpages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/common/config"
	"github.com/sberz/sandbox-pages/internal/templates"
	"github.com/sberz/sandbox-pages/internal/token"
)

func newTestClient(t *testing.T, tokens token.Source, handler http.HandlerFunc) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(Config{BaseURL: ts.URL + "/gh-pages"}, tokens, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestClientDeployCreateReactApp(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotAuth, gotContentType string
	var gotBody templates.BuildParams

	c := newTestClient(t, token.Static("tok123"), func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"id":"xyz","state":"queued"}`)
	})

	res, err := c.Deploy(t.Context(), Sandbox{ID: "xyz", Template: "create-react-app"}, "alice")
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q, want %q", gotMethod, http.MethodPost)
	}
	if gotPath != "/gh-pages/xyz" {
		t.Fatalf("path = %q, want %q", gotPath, "/gh-pages/xyz")
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer tok123")
	}
	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q, want %q", gotContentType, "application/json")
	}

	want := templates.BuildParams{
		Dist:         "build",
		Env:          "PUBLIC_URL=https://alice.github.io/csb-xyz/",
		BuildCommand: "build",
	}
	if gotBody != want {
		t.Fatalf("body = %#v, want %#v", gotBody, want)
	}

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("StatusCode = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if string(res.Body) != `{"id":"xyz","state":"queued"}` {
		t.Fatalf("Body = %s, want upstream body", res.Body)
	}
	if res.Request != want {
		t.Fatalf("Request = %#v, want %#v", res.Request, want)
	}
}

func TestClientDeployUsesRegistryDistDir(t *testing.T) {
	t.Parallel()

	registry, err := templates.NewRegistry(templates.Template{Name: "vite", DistDir: "dist"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	var gotBody templates.BuildParams
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := NewClient(Config{BaseURL: ts.URL}, token.Static(""), registry)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := c.Deploy(t.Context(), Sandbox{ID: "abc123", Template: "vite"}, "bob"); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	want := templates.BuildParams{Dist: "dist", BuildCommand: "build"}
	if gotBody != want {
		t.Fatalf("body = %#v, want %#v", gotBody, want)
	}
}

func TestClientDeployUnknownTemplateUsesDefaults(t *testing.T) {
	t.Parallel()

	var gotBody templates.BuildParams
	c := newTestClient(t, token.Static(""), func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})

	res, err := c.Deploy(t.Context(), Sandbox{ID: "abc123", Template: "made-up"}, "bob")
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	want := templates.BuildParams{Dist: templates.DefaultDistDir, BuildCommand: "build"}
	if gotBody != want {
		t.Fatalf("body = %#v, want %#v", gotBody, want)
	}
	if res.Request != want {
		t.Fatalf("Request = %#v, want %#v", res.Request, want)
	}
}

func TestClientGetSiteAndLogs(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, token.Static("tok"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/gh-pages/abc":
			_, _ = fmt.Fprint(w, `{"site":"https://alice.github.io/csb-abc/"}`)
		case "/gh-pages/abc/status":
			_, _ = fmt.Fprint(w, `{"status":"done","logs":["ok"]}`)
		default:
			http.NotFound(w, r)
		}
	})

	site, err := c.GetSite(t.Context(), "abc")
	if err != nil {
		t.Fatalf("GetSite() error = %v", err)
	}
	if string(site) != `{"site":"https://alice.github.io/csb-abc/"}` {
		t.Fatalf("GetSite() = %s", site)
	}

	logs, err := c.GetLogs(t.Context(), "abc")
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if string(logs) != `{"status":"done","logs":["ok"]}` {
		t.Fatalf("GetLogs() = %s", logs)
	}
}

func TestClientOmitsAuthorizationForEmptyToken(t *testing.T) {
	t.Parallel()

	var hasAuth atomic.Bool
	c := newTestClient(t, token.Static(""), func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["Authorization"]
		hasAuth.Store(ok)
		_, _ = fmt.Fprint(w, `{}`)
	})

	if _, err := c.GetSite(t.Context(), "abc"); err != nil {
		t.Fatalf("GetSite() error = %v", err)
	}
	if hasAuth.Load() {
		t.Fatal("request carried an Authorization header, want none")
	}
}

func TestClientStatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, token.Static("tok"), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"error":"expired"}`)
	})

	_, err := c.GetLogs(t.Context(), "abc")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetLogs() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusUnauthorized)
	}
	if string(statusErr.Body) != `{"error":"expired"}` {
		t.Fatalf("Body = %s, want upstream body", statusErr.Body)
	}
}

func TestClientTokenErrorPropagates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, token.NewCache(token.SourceFunc(func(_ context.Context) (string, error) {
		return "", errors.New("identity provider down")
	})), func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Deploy(t.Context(), Sandbox{ID: "abc", Template: "parcel"}, "alice")
	if !errors.Is(err, token.ErrTokenProvider) {
		t.Fatalf("Deploy() error = %v, want ErrTokenProvider", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("upstream calls = %d, want 0", calls.Load())
	}
}

func TestClientReusesCachedToken(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	tokens := token.NewCache(token.SourceFunc(func(_ context.Context) (string, error) {
		fetches.Add(1)
		return "tok", nil
	}))

	c := newTestClient(t, tokens, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = fmt.Fprint(w, `{}`)
	})

	if _, err := c.GetSite(t.Context(), "abc"); err != nil {
		t.Fatalf("GetSite() error = %v", err)
	}
	if _, err := c.GetLogs(t.Context(), "abc"); err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if _, err := c.Deploy(t.Context(), Sandbox{ID: "abc", Template: "gatsby"}, "alice"); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if fetches.Load() != 1 {
		t.Fatalf("token fetches = %d, want 1", fetches.Load())
	}
}

func TestClientRequiresID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if _, err := c.GetSite(t.Context(), ""); !errors.Is(err, ErrSiteIDRequired) {
		t.Fatalf("GetSite() error = %v, want ErrSiteIDRequired", err)
	}
	if _, err := c.GetLogs(t.Context(), ""); !errors.Is(err, ErrSiteIDRequired) {
		t.Fatalf("GetLogs() error = %v, want ErrSiteIDRequired", err)
	}
	if _, err := c.Deploy(t.Context(), Sandbox{Template: "parcel"}, "alice"); !errors.Is(err, ErrSandboxIDRequired) {
		t.Fatalf("Deploy() error = %v, want ErrSandboxIDRequired", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg     Config
		wantErr bool
	}{
		"defaults": {cfg: Config{}},
		"custom":   {cfg: Config{BaseURL: "http://localhost:8080/gh-pages"}},
		"bad scheme": {
			cfg:     Config{BaseURL: "ftp://example.test"},
			wantErr: true,
		},
		"negative timeout": {
			cfg:     Config{Timeout: -1},
			wantErr: true,
		},
		"basic auth in client config": {
			cfg:     Config{ClientConfig: config.HTTPClientConfig{BasicAuth: &config.BasicAuth{Username: "u", Password: "p"}}},
			wantErr: true,
		},
		"authorization in client config": {
			cfg:     Config{ClientConfig: config.HTTPClientConfig{Authorization: &config.Authorization{Type: "Bearer", Credentials: "from-config"}}},
			wantErr: true,
		},
		"oauth2 in client config": {
			cfg:     Config{ClientConfig: config.HTTPClientConfig{OAuth2: &config.OAuth2{ClientID: "id", TokenURL: "https://auth.example/token"}}},
			wantErr: true,
		},
		"bearer token in client config": {
			cfg:     Config{ClientConfig: config.HTTPClientConfig{BearerToken: "from-config"}},
			wantErr: true,
		},
		"bearer token file in client config": {
			cfg:     Config{ClientConfig: config.HTTPClientConfig{BearerTokenFile: "/var/run/secrets/token"}},
			wantErr: true,
		},
		"authorization header": {
			cfg:     Config{Headers: map[string]string{"authorization": "Bearer from-config"}},
			wantErr: true,
		},
		"authorization in client config headers": {
			cfg: Config{ClientConfig: config.HTTPClientConfig{HTTPHeaders: &config.Headers{
				Headers: map[string]config.Header{"Authorization": {Values: []string{"Bearer from-config"}}},
			}}},
			wantErr: true,
		},
		"extra header": {
			cfg: Config{Headers: map[string]string{"X-Team": "sandbox"}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("Validate() error = nil, want non-nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}

	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.Timeout != DefaultTimeout {
		t.Fatalf("defaults = %q/%v, want %q/%v", cfg.BaseURL, cfg.Timeout, DefaultBaseURL, DefaultTimeout)
	}
}

func TestNewClientRejectsConfiguredAuthorization(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	cfg := Config{
		BaseURL:      ts.URL,
		ClientConfig: config.HTTPClientConfig{BearerToken: "from-config"},
	}
	_, err := NewClient(cfg, token.Static(""), nil)
	if !errors.Is(err, ErrAuthConfigured) {
		t.Fatalf("NewClient() error = %v, want ErrAuthConfigured", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("upstream calls = %d, want 0", calls.Load())
	}
}
