package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

const tracerName = "github.com/wolfeidau/assetpipe/internal/assets"

// Pipeline runs one variant: Resolving, Transforming, Bundling, then either
// PostProcessing or Minifying, ending in Done or Failed. There are no retries.
type Pipeline struct {
	root    string
	variant *config.Variant
	sass    SassCompiler
	hooks   []PostBuildHook

	state   State
	history []State
	logger  zerolog.Logger
	tracer  trace.Tracer
}

type Option func(*Pipeline)

// WithSassCompiler replaces the dart-sass compiler.
func WithSassCompiler(c SassCompiler) Option {
	return func(p *Pipeline) {
		p.sass = c
	}
}

// WithHooks replaces the post-build hooks derived from the variant.
func WithHooks(hooks ...PostBuildHook) Option {
	return func(p *Pipeline) {
		p.hooks = hooks
	}
}

// New creates a pipeline for the variant with paths relative to root.
func New(root string, variant *config.Variant, opts ...Option) *Pipeline {
	p := &Pipeline{
		root:    root,
		variant: variant,
		tracer:  otel.Tracer(tracerName),
	}

	if variant.PostBuild != nil && variant.PostBuild.MinifyCSS {
		p.hooks = []PostBuildHook{NewCSSMinifyHook(variant.PostBuild.Suffix)}
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.sass == nil && variant.Sass != nil {
		p.sass = NewGodartsassCompiler(variant.Sass.Binary)
	}

	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return p.state
}

// transition moves to next unless the pipeline has already finished.
func (p *Pipeline) transition(next State) {
	if p.state.Terminal() {
		p.logger.Warn().Str("state", p.state.String()).Str("to", next.String()).Msg("Ignoring transition out of terminal state")
		return
	}
	p.logger.Debug().Str("from", p.state.String()).Str("to", next.String()).Msg("State transition")
	p.state = next
	p.history = append(p.history, next)
}

// Run executes the variant to a terminal state. The returned error is non-nil
// whenever the build did not fully succeed; hook failures never set it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	res := &Result{
		BuildID: uuid.NewString(),
		Variant: p.variant.Name,
		Modules: map[string][]string{},
	}

	p.state = StateResolving
	p.history = []State{StateResolving}
	p.logger = log.With().Str("build_id", res.BuildID).Str("variant", p.variant.Name).Logger()
	p.logger.Info().Str("mode", p.variant.Mode).Msg("Build started")

	ctx, span := p.tracer.Start(ctx, "assets.build", trace.WithAttributes(
		attribute.String("build.id", res.BuildID),
		attribute.String("build.variant", p.variant.Name),
	))
	defer span.End()

	if p.sass != nil {
		defer func() {
			if err := p.sass.Close(); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to stop sass compiler")
			}
		}()
	}

	err := p.run(ctx, res)

	res.Duration = time.Since(started)
	res.State = p.state
	res.States = p.history

	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("variant", p.variant.Name), attribute.String("status", status))
	m.BuildsTotal.Add(ctx, 1, attrs)
	m.BuildDuration.Record(ctx, float64(res.Duration.Milliseconds()), attrs)
	for _, a := range res.Artifacts {
		kind := metric.WithAttributes(attribute.String("kind", string(a.Kind)))
		m.ArtifactsTotal.Add(ctx, 1, kind)
		m.ArtifactBytes.Add(ctx, int64(a.Size), kind)
	}

	evt := p.logger.Info()
	if err != nil {
		evt = p.logger.Error().Err(err)
	}
	evt.Str("state", p.state.String()).
		Int("artifacts", len(res.Artifacts)).
		Dur("duration", res.Duration).
		Msg("Build finished")

	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	plan, err := p.resolve(ctx, res)
	if err != nil {
		p.transition(StateFailed)
		return err
	}

	if p.variant.Mode == config.ModeMinify {
		// the input is an existing bundle, so there is nothing to transform or bundle
		p.transition(StateTransforming)
		p.transition(StateBundling)
		p.transition(StateMinifying)
		artifacts, err := p.stage(ctx, "minify", func(ctx context.Context) ([]Artifact, error) {
			return plan.minifier.Minify(ctx, res.Entries)
		})
		res.Artifacts = append(res.Artifacts, artifacts...)
		if err != nil {
			p.transition(StateFailed)
			return err
		}
		p.transition(StateDone)
		return nil
	}

	p.transition(StateTransforming)
	if plan.linter != nil {
		report, err := plan.linter.Lint(ctx)
		if err != nil {
			p.transition(StateFailed)
			return err
		}
		res.Lint = report
		recordLint(ctx, report)
		if p.variant.Lint.FailOnError && report.Errors() > 0 {
			p.transition(StateFailed)
			return fmt.Errorf("%w: %d errors", ErrLint, report.Errors())
		}
	}

	var bundles []*Bundle
	_, buildErr := p.stage(ctx, "transform", func(ctx context.Context) ([]Artifact, error) {
		var err error
		bundles, err = plan.builder.Build(ctx, res.Entries)
		return nil, err
	})
	if buildErr != nil {
		res.TransformErrors = unjoin(buildErr)
		if len(bundles) == 0 {
			p.transition(StateFailed)
			return buildErr
		}
	}

	p.transition(StateBundling)
	for _, b := range bundles {
		res.Modules[b.Entry.Name] = b.Metadata.Modules()
	}
	emitted, err := p.stage(ctx, "emit", func(context.Context) ([]Artifact, error) {
		return plan.emitter.Emit(bundles)
	})
	res.Artifacts = append(res.Artifacts, emitted...)
	if err != nil {
		p.transition(StateFailed)
		return err
	}

	if len(p.hooks) > 0 {
		p.transition(StatePostProcessing)
		em := Emission{BuildID: res.BuildID, Variant: p.variant.Name, Artifacts: emitted}
		for hr := range ScheduleHooks(ctx, p.hooks, em) {
			res.Artifacts = append(res.Artifacts, hr.Artifacts...)
			if hr.Err != nil {
				res.HookErrors = append(res.HookErrors, fmt.Errorf("hook %s: %w", hr.Hook, hr.Err))
				telemetry.GetMetrics().HookFailureTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("hook", hr.Hook)))
			}
		}
	}

	p.transition(StateDone)

	return buildErr
}

// stages holds the stages constructed while resolving.
type stages struct {
	linter   *Linter
	builder  *Builder
	emitter  *Emitter
	minifier *Minifier
}

// resolve checks everything that would make the build impossible before any
// artifact is written.
func (p *Pipeline) resolve(ctx context.Context, res *Result) (*stages, error) {
	_, span := p.tracer.Start(ctx, "assets.resolve")
	defer span.End()

	v := p.variant
	if err := v.Validate(); err != nil {
		return nil, &ConfigurationError{Msg: "invalid variant", Err: err}
	}

	resolver, err := NewResolver(p.root, v.MainFields)
	if err != nil {
		return nil, err
	}

	entries, err := resolver.ResolveEntries(v)
	if err != nil {
		return nil, err
	}
	res.Entries = entries

	target, err := parseTarget(v.Target)
	if err != nil {
		return nil, err
	}

	outputDir := resolver.Abs(v.OutputDir)

	if v.Mode == config.ModeMinify {
		return &stages{minifier: NewMinifier(MinifierOptions{
			OutputDir:  outputDir,
			OutputName: v.OutputName,
			Target:     target,
			Minify:     *v.Minify,
		})}, nil
	}

	engines, err := ParseBrowsers(v.Browsers)
	if err != nil {
		return nil, err
	}

	builderOpts := BuilderOptions{
		Resolver:   resolver,
		OutputDir:  outputDir,
		OutputName: v.OutputName,
		Target:     target,
		Engines:    engines,
		SourceMap:  v.SourceMap,
		Provide:    v.Provide,
		Sass:       p.sass,
	}

	if v.Sass != nil {
		for _, dir := range v.Sass.IncludePaths {
			abs, err := resolver.ResolveDir(dir)
			if err != nil {
				return nil, err
			}
			builderOpts.SassIncludePaths = append(builderOpts.SassIncludePaths, abs)
		}
		builderOpts.SassSourceMap = v.Sass.SourceMap
	}

	pl := &stages{
		builder: NewBuilder(builderOpts),
		emitter: NewEmitter(EmitterOptions{
			OutputDir: outputDir,
			CSSDir:    v.CSSDir,
			Metafile:  v.Metafile,
			Gzip:      v.Gzip,
		}),
	}

	if v.Lint != nil {
		pl.linter, err = NewLinter(LintOptions{
			Root:          resolver.Root(),
			Include:       v.Lint.Include,
			Exclude:       v.Lint.Exclude,
			MaxLineLength: v.Lint.MaxLineLength,
		})
		if err != nil {
			return nil, err
		}
	}

	return pl, nil
}

// stage wraps fn in a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) ([]Artifact, error)) ([]Artifact, error) {
	started := time.Now()

	ctx, span := p.tracer.Start(ctx, "assets."+name)
	defer span.End()

	artifacts, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	telemetry.GetMetrics().StageDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("stage", name)))

	return artifacts, err
}

func recordLint(ctx context.Context, report *LintReport) {
	m := telemetry.GetMetrics()
	m.LintIssuesTotal.Add(ctx, int64(report.Errors()), metric.WithAttributes(attribute.String("severity", string(SeverityError))))
	m.LintIssuesTotal.Add(ctx, int64(report.Warnings()), metric.WithAttributes(attribute.String("severity", string(SeverityWarning))))
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// IsConfigurationError reports whether err stopped the build before any work.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
