package main

import (
	"context"
	"fmt"

	"github.com/sberz/sandbox-pages/internal/ignition"
	"github.com/sberz/sandbox-pages/internal/templates"
)

func setupDeployProvider(_ context.Context, cfg *serviceConfig, client ignition.Deployer, registry *templates.Registry) (ignition.Provider, ignition.ProviderType, error) {
	providerCfg := &ignition.ProviderConfig{Type: ignition.ProviderTypeGHPages}
	if cfg.Deployer != nil && !cfg.Deployer.IsZero() {
		providerCfg = cfg.Deployer
	}

	provider, err := ignition.NewProvider(providerCfg, client, registry)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize deploy provider: %w", err)
	}

	return provider, providerCfg.Type, nil
}
