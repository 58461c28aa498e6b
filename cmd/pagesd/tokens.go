package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sberz/sandbox-pages/internal/kube"
	"github.com/sberz/sandbox-pages/internal/token"
)

// setupTokenSource builds the uncached token source described by the config.
func setupTokenSource(ctx context.Context, cfg *serviceConfig) (token.Source, error) {
	src := cfg.Token.Source
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token source: %w", err)
	}

	switch src.Type {
	case "":
		slog.WarnContext(ctx, "no token source configured, build service requests are sent without authorization")
		return token.Static(""), nil
	case token.SourceTypeStatic:
		return token.Static(src.Static.Token), nil
	case token.SourceTypeFile:
		slog.DebugContext(ctx, "reading tokens from file", "path", src.File.Path)
		return token.NewFileSource(src.File.Path), nil
	case token.SourceTypeServiceAccount:
		slog.DebugContext(ctx, "Setting up Kubernetes client")
		clientset, err := kube.GetClient()
		if err != nil {
			return nil, fmt.Errorf("failed to get Kubernetes client: %w", err)
		}

		sa := src.ServiceAccount
		return kube.NewServiceAccountTokenSource(clientset, sa.Namespace, sa.Name, sa.Audiences, sa.Expiration), nil
	default:
		return nil, fmt.Errorf("%w: %q", token.ErrUnsupportedSourceType, src.Type)
	}
}
