package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sberz/sandbox-pages/internal/ghpages"
	"github.com/sberz/sandbox-pages/internal/ignition"
	"github.com/sberz/sandbox-pages/internal/store"
	"github.com/sberz/sandbox-pages/internal/templates"
	"github.com/sberz/sandbox-pages/internal/token"
)

const maxRequestBody = 1 << 20

// siteReader is implemented by *ghpages.Client.
type siteReader interface {
	GetSite(ctx context.Context, id string) (json.RawMessage, error)
	GetLogs(ctx context.Context, id string) (json.RawMessage, error)
}

type deployRequest struct {
	Template string `json:"template"`
	Username string `json:"username"`
}

type deployer struct {
	provider ignition.Provider
	name     ignition.ProviderType
}

func NewServerHandler(sites siteReader, deploy deployer, deployments *store.Store, registry *templates.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/sites/{id}", handleGetSite(sites))
	mux.Handle("GET /v1/sites/{id}/status", handleGetLogs(sites))
	mux.Handle("POST /v1/sites/{id}/deploy", handleDeploy(deploy, deployments))
	mux.Handle("GET /v1/deployments", handleListDeployments(deployments))
	mux.Handle("GET /v1/deployments/{id}", handleGetDeployment(deployments))
	mux.Handle("DELETE /v1/deployments/{id}", handleDeleteDeployment(deployments))
	mux.Handle("GET /v1/templates", handleListTemplates(registry))
	return mux
}

func handleGetSite(sites siteReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		site, err := sites.GetSite(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to get site", "error", err, "id", id)
			writeUpstreamError(w, err)
			return
		}

		writeRaw(w, http.StatusOK, site)
	})
}

func handleGetLogs(sites siteReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		logs, err := sites.GetLogs(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to get build logs", "error", err, "id", id)
			writeUpstreamError(w, err)
			return
		}

		writeRaw(w, http.StatusOK, logs)
	})
}

func handleDeploy(deploy deployer, deployments *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("id")

		var body deployRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "Bad Request: invalid JSON body", http.StatusBadRequest)
			return
		}
		if body.Template == "" || body.Username == "" {
			http.Error(w, "Bad Request: template and username are required", http.StatusBadRequest)
			return
		}

		res, err := deploy.provider.Trigger(ctx, ignition.TriggerRequest{
			Sandbox:  ghpages.Sandbox{ID: id, Template: body.Template},
			Username: body.Username,
		})

		record := store.Deployment{
			SandboxID:   id,
			Template:    body.Template,
			Username:    body.Username,
			Provider:    string(deploy.name),
			TriggeredAt: time.Now().UTC(),
		}
		if err != nil {
			record.Error = err.Error()
			var statusErr *ghpages.StatusError
			if errors.As(err, &statusErr) {
				record.StatusCode = statusErr.StatusCode
			}
		} else {
			record.Params = res.Params
			record.StatusCode = res.StatusCode
		}
		if recErr := deployments.RecordDeployment(ctx, record); recErr != nil {
			slog.ErrorContext(ctx, "failed to record deployment", "error", recErr, "id", id)
		}

		if err != nil {
			slog.ErrorContext(ctx, "failed to trigger deployment", "error", err, "id", id, "template", body.Template)
			writeUpstreamError(w, err)
			return
		}

		slog.InfoContext(ctx, "deployment triggered", "id", id, "template", body.Template, "provider", deploy.name, "status", res.StatusCode)

		// Nothing was sent upstream (dry run), so answer with the derived params.
		if res.StatusCode == 0 {
			writeJSON(w, http.StatusAccepted, struct {
				Params templates.BuildParams `json:"params"`
			}{Params: res.Params})
			return
		}

		writeRaw(w, res.StatusCode, res.Body)
	})
}

func handleListDeployments(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Deployments []store.Deployment `json:"deployments"`
		}{Deployments: s.ListDeployments(r.Context())})
	})
}

func handleGetDeployment(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		d, err := s.GetDeployment(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrDeploymentNotFound) {
				http.Error(w, "Deployment Not Found", http.StatusNotFound)
			} else {
				slog.ErrorContext(r.Context(), "failed to get deployment", "error", err, "id", id)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, d)
	})
}

func handleDeleteDeployment(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if err := s.DeleteDeployment(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrDeploymentNotFound) {
				http.Error(w, "Deployment Not Found", http.StatusNotFound)
			} else {
				slog.ErrorContext(r.Context(), "failed to delete deployment", "error", err, "id", id)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}

		slog.InfoContext(r.Context(), "deployment record deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleListTemplates(registry *templates.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Templates []templates.Template `json:"templates"`
		}{Templates: registry.List()})
	})
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	var statusErr *ghpages.StatusError

	switch {
	case errors.As(err, &statusErr):
		// Pass the build service's answer through unchanged.
		writeRaw(w, statusErr.StatusCode, statusErr.Body)
	case errors.Is(err, token.ErrTokenProvider):
		http.Error(w, "Token Unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, ghpages.ErrSiteIDRequired),
		errors.Is(err, ghpages.ErrSandboxIDRequired),
		errors.Is(err, ignition.ErrSandboxRequired),
		errors.Is(err, ignition.ErrUsernameRequired):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	default:
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	if len(body) > 0 && !json.Valid(body) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
