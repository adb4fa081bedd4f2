package assets

import (
	"context"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/config"
)

// MinifierOptions configures the production minify stage.
type MinifierOptions struct {
	OutputDir  string
	OutputName func(entry string) string
	Target     api.Target
	Minify     config.Minify
}

// Minifier rewrites already bundled JavaScript into a smaller form.
type Minifier struct {
	opts MinifierOptions
}

func NewMinifier(opts MinifierOptions) *Minifier {
	return &Minifier{opts: opts}
}

// Minify processes each entry and writes the result next to the configured
// output name. A parse failure is fatal since there is no fallback artifact.
func (m *Minifier) Minify(ctx context.Context, entries []Entry) ([]Artifact, error) {
	var artifacts []Artifact

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		src, err := os.ReadFile(entry.Path)
		if err != nil {
			return artifacts, &IOError{Op: "read", Path: entry.Path, Err: err}
		}

		out, err := m.minify(entry.Path, src)
		if err != nil {
			return artifacts, err
		}

		path := filepath.Join(m.opts.OutputDir, filepath.FromSlash(m.opts.OutputName(entry.Name)))
		if err := writeArtifact(path, out); err != nil {
			return artifacts, err
		}

		log.Info().
			Str("entry", entry.Name).
			Str("file", path).
			Int("bytes", len(out)).
			Int("original_bytes", len(src)).
			Msg("Minified bundle")

		artifacts = append(artifacts, Artifact{Entry: entry.Name, Kind: KindJS, Path: path, Size: len(out)})
	}

	return artifacts, nil
}

func (m *Minifier) minify(path string, src []byte) ([]byte, error) {
	result := api.Transform(string(src), api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        path,
		Target:            m.opts.Target,
		MinifyWhitespace:  true,
		MinifySyntax:      m.opts.Minify.Compress,
		MinifyIdentifiers: m.opts.Minify.Mangle,
		LegalComments:     cond(m.opts.Minify.Comments, api.LegalCommentsInline, api.LegalCommentsNone),
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		return nil, &MinifyError{Location: messageLocation(path, msg), Text: msg.Text}
	}

	if m.opts.Minify.Warnings {
		for _, msg := range result.Warnings {
			log.Warn().Str("location", messageLocation(path, msg).String()).Msg(msg.Text)
		}
	}

	return result.Code, nil
}

// Validate parses JavaScript in the given dialect and reports the first error.
func Validate(src []byte, target string) error {
	t, err := parseTarget(target)
	if err != nil {
		return err
	}

	result := api.Transform(string(src), api.TransformOptions{
		Loader:   api.LoaderJS,
		Target:   t,
		LogLevel: api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		return &TransformError{Location: messageLocation("<input>", msg), Text: msg.Text}
	}
	return nil
}
