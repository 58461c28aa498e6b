package token

import (
	"fmt"
	"time"
)

// DefaultCacheTTL is how long a fetched token is reused. Tokens issued for the
// build service are valid for 10s; reusing them for half of that leaves room
// for clock skew and in-flight requests.
const DefaultCacheTTL = 5 * time.Second

// MinServiceAccountExpiration is the shortest lifetime the Kubernetes API
// server accepts for a TokenRequest.
const MinServiceAccountExpiration = 10 * time.Minute

type SourceType string

const (
	SourceTypeStatic         SourceType = "static"
	SourceTypeFile           SourceType = "file"
	SourceTypeServiceAccount SourceType = "serviceAccount"
)

func (t SourceType) Validate() error {
	switch t {
	case SourceTypeStatic, SourceTypeFile, SourceTypeServiceAccount:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSourceType, t)
	}
}

type Config struct {
	Source   SourceConfig  `yaml:"source"`
	CacheTTL time.Duration `yaml:"cacheTTL,omitempty"`
}

type SourceConfig struct {
	Static         *StaticConfig         `yaml:"static,omitempty"`
	File           *FileConfig           `yaml:"file,omitempty"`
	ServiceAccount *ServiceAccountConfig `yaml:"serviceAccount,omitempty"`
	Type           SourceType            `yaml:"type"`
}

type StaticConfig struct {
	Token string `yaml:"token"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

// ServiceAccountConfig describes a Kubernetes ServiceAccount used to mint
// tokens through the TokenRequest API.
type ServiceAccountConfig struct {
	Namespace  string        `yaml:"namespace"`
	Name       string        `yaml:"name"`
	Audiences  []string      `yaml:"audiences,omitempty"`
	Expiration time.Duration `yaml:"expiration,omitempty"`
}

func (c *Config) Validate() error {
	if c.CacheTTL < 0 {
		return fmt.Errorf("cacheTTL must not be negative: %w", errInvalidVal)
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	return nil
}

// IsZero reports whether no source was configured at all.
func (c *SourceConfig) IsZero() bool {
	return c.Type == "" && c.Static == nil && c.File == nil && c.ServiceAccount == nil
}

func (c *SourceConfig) Validate() error {
	// No source means anonymous requests.
	if c.IsZero() {
		return nil
	}
	if err := c.Type.Validate(); err != nil {
		return err
	}

	switch c.Type {
	case SourceTypeStatic:
		if c.Static == nil {
			return fmt.Errorf("static config is required: %w", errInvalidVal)
		}
	case SourceTypeFile:
		if c.File == nil || c.File.Path == "" {
			return fmt.Errorf("file.path must be set: %w", errInvalidVal)
		}
	case SourceTypeServiceAccount:
		sa := c.ServiceAccount
		if sa == nil || sa.Namespace == "" || sa.Name == "" {
			return fmt.Errorf("serviceAccount.namespace and serviceAccount.name must be set: %w", errInvalidVal)
		}
		if sa.Expiration != 0 && sa.Expiration < MinServiceAccountExpiration {
			return fmt.Errorf("serviceAccount.expiration must be at least %s: %w", MinServiceAccountExpiration, errInvalidVal)
		}
	}

	return nil
}
