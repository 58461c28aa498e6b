package ignition

import (
	"context"
	"encoding/json"

	"github.com/sberz/sandbox-pages/internal/ghpages"
	"github.com/sberz/sandbox-pages/internal/templates"
)

type TriggerRequest struct {
	Sandbox  ghpages.Sandbox
	Username string
}

// Result describes an accepted deployment. StatusCode and Body are empty when
// nothing was sent upstream.
type Result struct {
	Body       json.RawMessage
	Params     templates.BuildParams
	StatusCode int
}

type Provider interface {
	Trigger(ctx context.Context, req TriggerRequest) (*Result, error)
}
