package store

import (
	"time"

	"github.com/sberz/sandbox-pages/internal/templates"
)

const (
	invalidEmpty = "cannot be empty"
	invalidZero  = "cannot be zero"
)

// Deployment is the latest deployment triggered for a sandbox.
type Deployment struct {
	TriggeredAt time.Time             `json:"triggeredAt"`
	Params      templates.BuildParams `json:"params"`
	SandboxID   string                `json:"sandboxId"`
	Template    string                `json:"template"`
	Username    string                `json:"username"`
	Provider    string                `json:"provider"`
	Error       string                `json:"error,omitempty"`
	StatusCode  int                   `json:"statusCode,omitempty"`
}

// IsValid checks if the deployment is valid. It returns a map of problems if
// any validation fails.
func (d *Deployment) IsValid() (problems map[string]string) {
	problems = make(map[string]string)
	if d == nil {
		problems["deployment"] = "cannot be nil"
		return problems
	}

	if d.SandboxID == "" {
		problems["sandboxId"] = invalidEmpty
	}
	if d.Username == "" {
		problems["username"] = invalidEmpty
	}
	if d.Provider == "" {
		problems["provider"] = invalidEmpty
	}
	if d.TriggeredAt.IsZero() {
		problems["triggeredAt"] = invalidZero
	}

	return problems
}

// Succeeded reports whether the trigger was accepted.
func (d *Deployment) Succeeded() bool {
	return d.Error == ""
}
