package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrInvalidDeployment  = fmt.Errorf("invalid deployment")
	ErrDeploymentNotFound = fmt.Errorf("deployment not found")
)

var deploymentInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "sandboxpages_deployment_last_triggered",
	Help: "Unix timestamp of the latest deployment per sandbox",
}, []string{"sandbox", "template", "result"})

// Store keeps the latest deployment of every sandbox in memory.
type Store struct {
	deployments map[string]Deployment
	mu          sync.RWMutex
}

// NewStore creates a new Store instance.
func NewStore() *Store {
	return &Store{
		deployments: make(map[string]Deployment),
	}
}

// RecordDeployment stores d as the latest deployment of its sandbox,
// replacing any earlier one.
func (s *Store) RecordDeployment(ctx context.Context, d Deployment) error {
	problems := d.IsValid()
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDeployment, problems)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.deployments[d.SandboxID]; exists {
		slog.DebugContext(ctx, "replacing previous deployment",
			"sandbox_id", d.SandboxID,
			"previous_triggered_at", old.TriggeredAt,
		)
		deploymentInfo.DeleteLabelValues(old.SandboxID, old.Template, result(old))
	}

	s.deployments[d.SandboxID] = d
	deploymentInfo.WithLabelValues(d.SandboxID, d.Template, result(d)).Set(float64(d.TriggeredAt.Unix()))

	return nil
}

// GetDeployment retrieves the latest deployment of a sandbox.
func (s *Store) GetDeployment(_ context.Context, sandboxID string) (Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.deployments[sandboxID]
	if !exists {
		return Deployment{}, fmt.Errorf("%w: %s", ErrDeploymentNotFound, sandboxID)
	}

	return d, nil
}

// DeleteDeployment forgets the deployment of a sandbox.
func (s *Store) DeleteDeployment(_ context.Context, sandboxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.deployments[sandboxID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDeploymentNotFound, sandboxID)
	}

	delete(s.deployments, sandboxID)
	// Clean up the metric
	deploymentInfo.DeleteLabelValues(d.SandboxID, d.Template, result(d))

	return nil
}

// ListDeployments returns all deployments sorted by sandbox id.
func (s *Store) ListDeployments(_ context.Context) []Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.deployments))

	list := make([]Deployment, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.deployments[id])
	}

	return list
}

// GetDeploymentCount returns the number of sandboxes with a recorded deployment.
func (s *Store) GetDeploymentCount(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.deployments)
}

func result(d Deployment) string {
	if d.Succeeded() {
		return "accepted"
	}
	return "error"
}
