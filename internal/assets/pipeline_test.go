package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/assetpipe/internal/config"
)

const (
	appJS   = "import \"../sass/main.scss\";\n/*! legal banner */\nexport const x = 1;\nfunction computeTotal(a, b) {\n  return a + b;\n}\nconsole.log(x, computeTotal(1, 2));\n"
	mainCSS = "/* theme colours */\n.a { color: red; }\n"
)

func newProject(t *testing.T, files map[string]string) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)
	return root, config.Default(root)
}

func defaultProject(t *testing.T) (string, *config.Config) {
	return newProject(t, map[string]string{
		"source/js/app.js":      appJS,
		"source/sass/main.scss": mainCSS,
	})
}

func runDev(t *testing.T, root string, v *config.Variant, opts ...Option) (*Result, error) {
	t.Helper()
	opts = append([]Option{WithSassCompiler(&passthroughSass{})}, opts...)
	return New(root, v, opts...).Run(context.Background())
}

func TestPipeline_Dev(t *testing.T) {
	root, cfg := defaultProject(t)
	sass := &passthroughSass{}

	p := New(root, cfg.Variants[config.VariantDev], WithSassCompiler(sass))
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, StateDone, p.State())
	assert.Equal(t, []State{StateResolving, StateTransforming, StateBundling, StatePostProcessing, StateDone}, res.States)
	assert.NotEmpty(t, res.BuildID)
	assert.Empty(t, res.TransformErrors)
	assert.Empty(t, res.HookErrors)
	assert.True(t, sass.closed)

	require.Len(t, sass.requests, 1)
	assert.Equal(t, []string{filepath.Join(root, "source/sass")}, sass.requests[0].IncludePaths)
	assert.True(t, sass.requests[0].SourceMap)

	jsPath := filepath.Join(root, "template/assets/js/app.js")
	js := readFile(t, jsPath)
	assert.NotContains(t, js, "const")
	assert.Contains(t, js, "console.log")
	assert.Contains(t, js, "legal banner")
	require.NoError(t, Validate([]byte(js), "es5"))
	assert.FileExists(t, jsPath+".map")

	cssPath := filepath.Join(root, "template/assets/css/app.css")
	css := readFile(t, cssPath)
	assert.Contains(t, css, ".a")
	assert.Contains(t, css, "color: red")
	assert.FileExists(t, cssPath+".map")

	minCSS := readFile(t, filepath.Join(root, "template/assets/css/app.min.css"))
	assert.Contains(t, minCSS, ".a{color:red}")
	assert.NotContains(t, minCSS, "theme colours")
	assert.LessOrEqual(t, len(minCSS), len(css))

	jsArtifacts := 0
	for _, a := range res.Artifacts {
		if a.Entry == "app" && a.Kind == KindJS {
			jsArtifacts++
		}
	}
	assert.Equal(t, 1, jsArtifacts)

	assert.Contains(t, res.Modules["app"], "source/js/app.js")
	assert.Contains(t, res.Modules["app"], "source/sass/main.scss")

	require.NotNil(t, res.Lint)
	assert.Equal(t, []string{"source/js/app.js"}, res.Lint.Files)
}

func TestPipeline_DevIsDeterministic(t *testing.T) {
	root, cfg := defaultProject(t)
	v := cfg.Variants[config.VariantDev]

	_, err := runDev(t, root, v)
	require.NoError(t, err)
	first := readFile(t, filepath.Join(root, "template/assets/js/app.js"))
	firstCSS := readFile(t, filepath.Join(root, "template/assets/css/app.css"))

	_, err = runDev(t, root, v)
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, filepath.Join(root, "template/assets/js/app.js")))
	assert.Equal(t, firstCSS, readFile(t, filepath.Join(root, "template/assets/css/app.css")))
}

func TestPipeline_VendorPrefixes(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":      "import \"../sass/main.scss\";\n",
		"source/sass/main.scss": ".b { user-select: none; appearance: none; }\n",
	})
	v := cfg.Variants[config.VariantDev]
	v.Browsers = []string{"safari 12"}

	_, err := runDev(t, root, v)
	require.NoError(t, err)

	css := readFile(t, filepath.Join(root, "template/assets/css/app.css"))
	assert.Contains(t, css, "-webkit-")
}

func TestPipeline_MissingEntry(t *testing.T) {
	root, cfg := newProject(t, map[string]string{"source/sass/main.scss": mainCSS})

	res, err := runDev(t, root, cfg.Variants[config.VariantDev])
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateResolving, StateFailed}, res.States)
	assert.Empty(t, res.Artifacts)
	assert.NoDirExists(t, filepath.Join(root, "template"))
}

func TestPipeline_MissingIncludePath(t *testing.T) {
	root, cfg := newProject(t, map[string]string{"source/js/app.js": "var a = 1;\n"})

	res, err := runDev(t, root, cfg.Variants[config.VariantDev])
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "missing include path")
	assert.Equal(t, StateFailed, res.State)
	assert.NoDirExists(t, filepath.Join(root, "template"))
}

func TestPipeline_TerminalStateIsFinal(t *testing.T) {
	for _, state := range []State{StateDone, StateFailed} {
		p := &Pipeline{state: state}
		p.transition(StateBundling)
		assert.Equal(t, state, p.State())
		assert.Empty(t, p.history)
	}
}

func TestPipeline_ProdBeforeDev(t *testing.T) {
	root, cfg := defaultProject(t)

	res, err := New(root, cfg.Variants[config.VariantProd]).Run(context.Background())
	require.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, errors.Is(err, ErrMinify))
	assert.Equal(t, StateFailed, res.State)
}

func TestPipeline_ProdAfterDev(t *testing.T) {
	root, cfg := defaultProject(t)

	_, err := runDev(t, root, cfg.Variants[config.VariantDev])
	require.NoError(t, err)

	res, err := New(root, cfg.Variants[config.VariantProd]).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{StateResolving, StateTransforming, StateBundling, StateMinifying, StateDone}, res.States)

	dev := readFile(t, filepath.Join(root, "template/assets/js/app.js"))
	minPath := filepath.Join(root, "template/assets/js/app.min.js")
	min := readFile(t, minPath)

	a, ok := res.Artifact("app", KindJS)
	require.True(t, ok)
	assert.Equal(t, minPath, a.Path)

	assert.Less(t, len(min), len(dev))
	assert.NotContains(t, min, "legal banner")
	assert.NotContains(t, min, "computeTotal")
	assert.Contains(t, min, "console.log")
	require.NoError(t, Validate([]byte(min), "es5"))
}

func TestPipeline_MinifyParseError(t *testing.T) {
	root, cfg := newProject(t, map[string]string{"template/assets/js/app.js": "function ( {\n"})

	res, err := New(root, cfg.Variants[config.VariantProd]).Run(context.Background())
	require.ErrorIs(t, err, ErrMinify)
	assert.Equal(t, StateFailed, res.State)
	assert.NoFileExists(t, filepath.Join(root, "template/assets/js/app.min.js"))

	var minErr *MinifyError
	require.ErrorAs(t, err, &minErr)
	assert.Equal(t, 1, minErr.Line)
}

func TestPipeline_TransformErrorIsolated(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":  "var ok = 1;\nconsole.log(ok);\n",
		"source/js/bad.js":  "var ok = 1;\nvar = ;\n",
		"source/sass/.keep": "",
	})
	v := cfg.Variants[config.VariantDev]
	v.Entries["bad"] = "source/js/bad.js"

	res, err := runDev(t, root, v)
	require.ErrorIs(t, err, ErrTransform)
	assert.Equal(t, StateDone, res.State)

	require.NotEmpty(t, res.TransformErrors)
	var terr *TransformError
	require.ErrorAs(t, res.TransformErrors[0], &terr)
	assert.Equal(t, "bad", terr.Entry)
	assert.Contains(t, terr.File, "bad.js")
	assert.Equal(t, 2, terr.Line)

	assert.FileExists(t, filepath.Join(root, "template/assets/js/app.js"))
	assert.NoFileExists(t, filepath.Join(root, "template/assets/js/bad.js"))
}

func TestPipeline_LoopClosureIsNotLowered(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":  "var fns = [];\nfor (let i = 0; i < 3; i++) {\n  fns.push(function () { return i; });\n}\n",
		"source/sass/.keep": "",
	})

	res, err := runDev(t, root, cfg.Variants[config.VariantDev])
	require.ErrorIs(t, err, ErrTransform)
	assert.Equal(t, StateFailed, res.State)

	require.NotEmpty(t, res.TransformErrors)
	var terr *TransformError
	require.ErrorAs(t, res.TransformErrors[0], &terr)
	assert.Equal(t, "app", terr.Entry)
	assert.Contains(t, terr.File, "app.js")
	assert.Equal(t, 2, terr.Line)
	assert.Contains(t, terr.Text, `"i"`)
	assert.NoFileExists(t, filepath.Join(root, "template/assets/js/app.js"))
}

func TestPipeline_SassErrorLocation(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":      "import \"../sass/main.scss\";\n",
		"source/sass/main.scss": ".a {\n  color: red;\n}\n.b {\n  color: ;\n}\n",
	})

	res, err := New(root, cfg.Variants[config.VariantDev], WithSassCompiler(syntaxErrorSass{marker: " ;"})).Run(context.Background())
	require.ErrorIs(t, err, ErrTransform)

	require.NotEmpty(t, res.TransformErrors)
	var terr *TransformError
	require.ErrorAs(t, res.TransformErrors[0], &terr)
	assert.Contains(t, terr.File, "main.scss")
	assert.Equal(t, 5, terr.Line)
	assert.Equal(t, 8, terr.Column)
	assert.Contains(t, terr.Text, "expected expression")
}

func TestPipeline_AllEntriesFail(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":      "import \"../sass/main.scss\";\n",
		"source/sass/main.scss": ".a {",
	})

	res, err := New(root, cfg.Variants[config.VariantDev], WithSassCompiler(failingSass{})).Run(context.Background())
	require.ErrorIs(t, err, ErrTransform)
	assert.Equal(t, StateFailed, res.State)
	assert.NoDirExists(t, filepath.Join(root, "template"))
}

func TestPipeline_LintIsNonFatalByDefault(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":  "debugger;\nvar a = 1;\n",
		"source/sass/.keep": "",
	})

	res, err := runDev(t, root, cfg.Variants[config.VariantDev])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Lint.Errors())
	assert.FileExists(t, filepath.Join(root, "template/assets/js/app.js"))
}

func TestPipeline_LintFailOnError(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":  "debugger;\nvar a = 1;\n",
		"source/sass/.keep": "",
	})
	v := cfg.Variants[config.VariantDev]
	v.Lint.FailOnError = true

	res, err := runDev(t, root, v)
	require.ErrorIs(t, err, ErrLint)
	assert.Equal(t, StateFailed, res.State)
	assert.NoDirExists(t, filepath.Join(root, "template"))
}

type recordingHook struct {
	sawOnDisk bool
	err       error
}

func (h *recordingHook) Name() string { return "recording" }

func (h *recordingHook) Run(ctx context.Context, em Emission) ([]Artifact, error) {
	for _, a := range em.Artifacts {
		if a.Kind == KindJS {
			_, err := os.Stat(a.Path)
			h.sawOnDisk = err == nil
		}
	}
	return nil, h.err
}

func TestPipeline_HookRunsAfterEmission(t *testing.T) {
	root, cfg := defaultProject(t)
	hook := &recordingHook{}

	res, err := runDev(t, root, cfg.Variants[config.VariantDev], WithHooks(hook))
	require.NoError(t, err)
	assert.True(t, hook.sawOnDisk)
	assert.Empty(t, res.HookErrors)
}

func TestPipeline_HookFailureDoesNotFailBuild(t *testing.T) {
	root, cfg := defaultProject(t)
	hook := &recordingHook{err: &IOError{Op: "write", Path: "app.min.css", Err: os.ErrPermission}}

	res, err := runDev(t, root, cfg.Variants[config.VariantDev], WithHooks(hook))
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	require.Len(t, res.HookErrors, 1)
	assert.ErrorIs(t, res.HookErrors[0], ErrIO)
}

func TestPipeline_GzipAndMetafile(t *testing.T) {
	root, cfg := defaultProject(t)
	v := cfg.Variants[config.VariantDev]
	v.Gzip = true
	v.Metafile = true

	res, err := runDev(t, root, v)
	require.NoError(t, err)

	jsPath := filepath.Join(root, "template/assets/js/app.js")
	compressed, err := os.ReadFile(jsPath + ".gz")
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, readFile(t, jsPath), string(plain))

	assert.FileExists(t, filepath.Join(root, "template/assets/css/app.css.gz"))
	assert.FileExists(t, filepath.Join(root, "template/assets/js/app.meta.json"))

	_, ok := res.Artifact("app", KindMetafile)
	assert.True(t, ok)
}

func TestPipeline_ProvideShim(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"source/js/app.js":         "fetch(\"/api\");\n",
		"source/sass/.keep":        "",
		"vendor/fetch-polyfill.js": "export function fetch(url) {\n  return \"shimmed-fetch:\" + url;\n}\n",
	})
	v := cfg.Variants[config.VariantDev]
	v.Provide = map[string]string{
		"fetch":   "./vendor/fetch-polyfill.js",
		"Promise": "es6-promise#Promise",
	}

	_, err := runDev(t, root, v)
	require.NoError(t, err)

	js := readFile(t, filepath.Join(root, "template/assets/js/app.js"))
	assert.Contains(t, js, "shimmed-fetch:")
}
