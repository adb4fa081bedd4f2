package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/parse/v2"
	csslex "github.com/tdewolff/parse/v2/css"
)

// Emission is passed to post-build hooks once the emitter has flushed to disk.
type Emission struct {
	BuildID   string
	Variant   string
	Artifacts []Artifact
}

// PostBuildHook runs after a completed emission. Its failures are reported
// but never change the outcome of the build.
type PostBuildHook interface {
	Name() string
	Run(ctx context.Context, em Emission) ([]Artifact, error)
}

// HookResult reports the outcome of one hook.
type HookResult struct {
	Hook      string
	Artifacts []Artifact
	Err       error
}

// ScheduleHooks runs the hooks in order on a separate goroutine, exactly once
// for this emission. The returned channel yields one result per hook and is
// closed when the last hook finishes.
func ScheduleHooks(ctx context.Context, hooks []PostBuildHook, em Emission) <-chan HookResult {
	results := make(chan HookResult, len(hooks))

	go func() {
		defer close(results)

		for _, hook := range hooks {
			artifacts, err := hook.Run(ctx, em)
			if err != nil {
				log.Error().Err(err).Str("hook", hook.Name()).Msg("Post-build hook failed")
			}
			results <- HookResult{Hook: hook.Name(), Artifacts: artifacts, Err: err}
		}
	}()

	return results
}

// CSSMinifyHook reads every emitted stylesheet back from disk, strips comments,
// minifies it and writes a sibling file with Suffix before the extension.
type CSSMinifyHook struct {
	Suffix string
	m      *minify.M
}

func NewCSSMinifyHook(suffix string) *CSSMinifyHook {
	if suffix == "" {
		suffix = ".min"
	}

	m := minify.New()
	m.Add("text/css", &css.Minifier{})

	return &CSSMinifyHook{Suffix: suffix, m: m}
}

func (h *CSSMinifyHook) Name() string { return "minify-css" }

func (h *CSSMinifyHook) Run(ctx context.Context, em Emission) ([]Artifact, error) {
	var artifacts []Artifact

	for _, a := range em.Artifacts {
		if a.Kind != KindCSS {
			continue
		}
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		src, err := os.ReadFile(a.Path)
		if err != nil {
			return artifacts, &IOError{Op: "read", Path: a.Path, Err: err}
		}

		out, err := h.m.String("text/css", string(src))
		if err != nil {
			return artifacts, fmt.Errorf("failed to minify %s: %w", a.Path, err)
		}
		out, err = stripComments(out)
		if err != nil {
			return artifacts, fmt.Errorf("failed to strip comments from %s: %w", a.Path, err)
		}
		if len(out) > len(src) {
			out = string(src)
		}

		path := MinifiedPath(a.Path, h.Suffix)
		if err := writeArtifact(path, []byte(out)); err != nil {
			return artifacts, err
		}

		log.Info().Str("file", path).Int("bytes", len(out)).Int("original_bytes", len(src)).Msg("Minified stylesheet")
		artifacts = append(artifacts, Artifact{Entry: a.Entry, Kind: KindCSS, Path: path, Size: len(out)})
	}

	return artifacts, nil
}

// stripComments drops the /*! */ comments the minifier preserves.
func stripComments(src string) (string, error) {
	l := csslex.NewLexer(parse.NewInputString(src))

	var sb strings.Builder
	sb.Grow(len(src))
	for {
		tt, data := l.Next()
		switch tt {
		case csslex.ErrorToken:
			if err := l.Err(); err != io.EOF {
				return "", err
			}
			return sb.String(), nil
		case csslex.CommentToken:
			continue
		}
		sb.Write(data)
	}
}

// MinifiedPath inserts suffix before the extension: app.css becomes app.min.css.
func MinifiedPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
