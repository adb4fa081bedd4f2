package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bep/godartsass/v2"
	"github.com/stretchr/testify/require"
)

// passthroughSass treats SCSS input as plain CSS.
type passthroughSass struct {
	mu       sync.Mutex
	requests []SassRequest
	closed   bool
}

func (s *passthroughSass) Compile(ctx context.Context, req SassRequest) (SassResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return SassResult{CSS: req.Source}, nil
}

func (s *passthroughSass) Close() error {
	s.closed = true
	return nil
}

type failingSass struct{}

func (failingSass) Compile(ctx context.Context, req SassRequest) (SassResult, error) {
	return SassResult{}, errors.New("expected \"}\"")
}

func (failingSass) Close() error { return nil }

// syntaxErrorSass fails every compile at the first occurrence of marker,
// reporting the span the way dart-sass does.
type syntaxErrorSass struct {
	marker string
}

func (s syntaxErrorSass) Compile(ctx context.Context, req SassRequest) (SassResult, error) {
	offset := strings.Index(req.Source, s.marker)

	var serr godartsass.SassError
	serr.Message = "expected expression"
	serr.Span.Url = "file://" + filepath.ToSlash(req.Path)
	serr.Span.Start.Offset = offset
	serr.Span.Start.Column = offset - strings.LastIndexByte(req.Source[:offset], '\n') - 1
	serr.Span.End.Offset = offset + len(s.marker)
	return SassResult{}, serr
}

func (syntaxErrorSass) Close() error { return nil }

// writeFiles creates files relative to root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
