package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// BuilderOptions configures the transform and bundle stages.
type BuilderOptions struct {
	Resolver  *Resolver
	OutputDir string
	// OutputName maps an entry name to its output file, for example "app.js"
	OutputName func(entry string) string
	Target     api.Target
	Engines    []api.Engine
	SourceMap  bool
	Provide    map[string]string

	Sass             SassCompiler
	SassIncludePaths []string
	SassSourceMap    bool
}

// Bundle is the in memory output of building one entry.
type Bundle struct {
	Entry    Entry
	Files    []api.OutputFile
	Metafile string
	Metadata *BuildMetadata
}

// Builder transforms sources and bundles each entry into its own artifact set.
type Builder struct {
	opts BuilderOptions
}

func NewBuilder(opts BuilderOptions) *Builder {
	return &Builder{opts: opts}
}

// Build compiles every entry independently. Entries that fail produce a
// TransformError; the returned bundles cover the entries that succeeded.
func (b *Builder) Build(ctx context.Context, entries []Entry) ([]*Bundle, error) {
	shimDir, err := os.MkdirTemp("", "assetpipe-provide-")
	if err != nil {
		return nil, &IOError{Op: "mkdir", Path: os.TempDir(), Err: err}
	}
	defer os.RemoveAll(shimDir)

	inject, err := writeShims(shimDir, b.opts.Resolver, b.opts.Provide)
	if err != nil {
		return nil, err
	}

	var (
		bundles []*Bundle
		errs    []error
	)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return bundles, err
		}

		bundle, buildErrs := b.buildEntry(ctx, entry, inject)
		if len(buildErrs) > 0 {
			errs = append(errs, buildErrs...)
			continue
		}
		bundles = append(bundles, bundle)
	}

	return bundles, errors.Join(errs...)
}

func (b *Builder) buildEntry(ctx context.Context, entry Entry, inject []string) (*Bundle, []error) {
	log.Info().Str("entry", entry.Name).Str("path", entry.Path).Msg("Building entry")

	var plugins []api.Plugin
	if b.opts.Target == api.ES5 {
		plugins = append(plugins, blockScopingPlugin(b.opts.Target))
	}
	if b.opts.Sass != nil {
		plugins = append(plugins, sassPlugin(ctx, b.opts.Sass, b.opts.SassIncludePaths, b.opts.SassSourceMap))
	}

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: []api.EntryPoint{{
			InputPath:  entry.Path,
			OutputPath: strings.TrimSuffix(filepath.FromSlash(b.opts.OutputName(entry.Name)), ".js"),
		}},
		AbsWorkingDir: b.opts.Resolver.Root(),
		Bundle:        true,
		Write:         false,
		Outdir:        b.opts.OutputDir,
		Format:        api.FormatIIFE,
		Platform:      api.PlatformBrowser,
		Target:        b.opts.Target,
		Engines:       b.opts.Engines,
		MainFields:    b.opts.Resolver.MainFields(),
		NodePaths:     b.opts.Resolver.NodePaths(),
		Inject:        inject,
		Plugins:       plugins,
		Sourcemap:     cond(b.opts.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		errs := make([]error, 0, len(result.Errors))
		for _, msg := range result.Errors {
			terr := &TransformError{Entry: entry.Name, Location: messageLocation(entry.Path, msg), Text: msg.Text}
			log.Error().Str("entry", entry.Name).Str("location", terr.Location.String()).Msg(msg.Text)
			errs = append(errs, terr)
		}
		return nil, errs
	}

	for _, msg := range result.Warnings {
		log.Warn().Str("entry", entry.Name).Str("location", messageLocation(entry.Path, msg).String()).Msg(msg.Text)
	}

	metadata, err := parseMetadata(result.Metafile)
	if err != nil {
		return nil, []error{err}
	}

	return &Bundle{
		Entry:    entry,
		Files:    result.OutputFiles,
		Metafile: result.Metafile,
		Metadata: metadata,
	}, nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
