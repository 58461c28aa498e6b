package ignition

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sberz/sandbox-pages/internal/templates"
)

var ignitionTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sandboxpages_deploy_triggers_total",
	Help: "Total number of deployment trigger attempts",
}, []string{"provider", "template", "status"})

type instrumentedProvider struct {
	next         Provider
	providerName string
}

func (p *instrumentedProvider) Trigger(ctx context.Context, req TriggerRequest) (*Result, error) {
	res, err := p.next.Trigger(ctx, req)
	if err != nil {
		ignitionTriggers.WithLabelValues(p.providerName, req.Sandbox.Template, "error").Inc()
		return nil, fmt.Errorf("provider trigger failed: %w", err)
	}

	ignitionTriggers.WithLabelValues(p.providerName, req.Sandbox.Template, "accepted").Inc()
	return res, nil
}

// NewProvider builds the provider selected by cfg. client is only used by the
// ghpages provider.
func NewProvider(cfg *ProviderConfig, client Deployer, registry *templates.Registry) (Provider, error) {
	if cfg == nil {
		return nil, ErrProviderConfigRequired
	}

	switch cfg.Type {
	case ProviderTypeGHPages:
		if client == nil {
			return nil, fmt.Errorf("%w: ghpages provider needs a client", ErrProviderConfigRequired)
		}
		return &instrumentedProvider{
			providerName: string(cfg.Type),
			next:         NewGHPagesProvider(client),
		}, nil
	case ProviderTypeDryRun:
		if registry == nil {
			var err error
			registry, err = templates.NewRegistry()
			if err != nil {
				return nil, fmt.Errorf("failed to create template registry: %w", err)
			}
		}
		return &instrumentedProvider{
			providerName: string(cfg.Type),
			next:         NewDryRunProvider(registry),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProviderType, cfg.Type)
	}
}
