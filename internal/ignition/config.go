package ignition

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedProviderType = errors.New("unsupported provider type")
	ErrProviderConfigRequired  = errors.New("provider config is required")
)

type ProviderType string

const (
	ProviderTypeGHPages ProviderType = "ghpages"
	ProviderTypeDryRun  ProviderType = "dryrun"
)

func (p ProviderType) Validate() error {
	switch p {
	case ProviderTypeGHPages, ProviderTypeDryRun:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProviderType, p)
	}
}

type ProviderConfig struct {
	Type ProviderType `yaml:"type"`
}

func (c *ProviderConfig) IsZero() bool {
	if c == nil {
		return true
	}

	return c.Type == ""
}

func (c *ProviderConfig) Validate() error {
	if c == nil || c.IsZero() {
		return nil
	}
	return c.Type.Validate()
}
