package ignition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sberz/sandbox-pages/internal/templates"
)

// otherTemplate labels dry runs of templates missing from the registry, so
// user input cannot grow the label set.
const otherTemplate = "other"

var dryRunRequestedAt = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "sandboxpages_last_dryrun_requested",
	Help: "Unix timestamp of the latest dry-run deployment request per template",
}, []string{"template"})

// DryRunProvider derives the build parameters without contacting the build
// service.
type DryRunProvider struct {
	templates *templates.Registry
}

func NewDryRunProvider(registry *templates.Registry) *DryRunProvider {
	return &DryRunProvider{templates: registry}
}

func (p *DryRunProvider) Trigger(ctx context.Context, req TriggerRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tpl, known := p.templates.Lookup(req.Sandbox.Template)
	label := tpl.Name
	if !known {
		tpl = p.templates.Get(req.Sandbox.Template)
		label = otherTemplate
	}
	params, err := tpl.BuildParams(req.Sandbox.ID, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to derive build params: %w", err)
	}

	slog.InfoContext(ctx, "Dry run deployment",
		"sandbox_id", req.Sandbox.ID,
		"template", tpl.Name,
		"dist", params.Dist,
		"env", params.Env,
		"build_command", params.BuildCommand,
	)
	dryRunRequestedAt.WithLabelValues(label).Set(float64(time.Now().Unix()))

	return &Result{Params: params}, nil
}
