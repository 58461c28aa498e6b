package ignition

import (
	"context"
	"errors"
	"fmt"

	"github.com/sberz/sandbox-pages/internal/ghpages"
)

var (
	ErrSandboxRequired  = errors.New("sandbox id is required")
	ErrUsernameRequired = errors.New("username is required")
)

// Deployer is implemented by *ghpages.Client.
type Deployer interface {
	Deploy(ctx context.Context, sandbox ghpages.Sandbox, username string) (*ghpages.Response, error)
}

// GHPagesProvider publishes sandboxes through the GitHub Pages build service.
type GHPagesProvider struct {
	client Deployer
}

func NewGHPagesProvider(client Deployer) *GHPagesProvider {
	return &GHPagesProvider{client: client}
}

func (p *GHPagesProvider) Trigger(ctx context.Context, req TriggerRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	res, err := p.client.Deploy(ctx, req.Sandbox, req.Username)
	if err != nil {
		return nil, fmt.Errorf("deploy failed: %w", err)
	}

	return &Result{
		Params:     res.Request,
		StatusCode: res.StatusCode,
		Body:       res.Body,
	}, nil
}

func (r TriggerRequest) validate() error {
	if r.Sandbox.ID == "" {
		return ErrSandboxRequired
	}
	if r.Username == "" {
		return ErrUsernameRequired
	}
	return nil
}
