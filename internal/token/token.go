package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrTokenProvider         = errors.New("token provider failed")
	ErrUnsupportedSourceType = errors.New("unsupported token source type")
	errInvalidVal            = errors.New("invalid value")
)

// Source provides bearer tokens for the build service. An empty token means
// requests are sent without an Authorization header.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a Source that always yields value.
func Static(value string) Source {
	return SourceFunc(func(_ context.Context) (string, error) {
		return value, nil
	})
}

// FileSource reads the token from a file on every call, so rotated
// credentials (e.g. projected volumes) are picked up without a restart.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Token(_ context.Context) (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	return strings.TrimSpace(string(b)), nil
}
