package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// SassRequest is a single stylesheet compilation.
type SassRequest struct {
	Path         string
	Source       string
	IncludePaths []string
	SourceMap    bool
}

// SassResult holds the compiled CSS and an optional source map.
type SassResult struct {
	CSS       string
	SourceMap string
}

// SassCompiler compiles Sass stylesheets into plain CSS.
type SassCompiler interface {
	Compile(ctx context.Context, req SassRequest) (SassResult, error)
	Close() error
}

// GodartsassCompiler drives a dart-sass process over the embedded protocol.
// The process is started on first use.
type GodartsassCompiler struct {
	binary string

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewGodartsassCompiler creates a compiler for the given dart-sass binary,
// "sass" on PATH when empty.
func NewGodartsassCompiler(binary string) *GodartsassCompiler {
	if binary == "" {
		binary = "sass"
	}
	return &GodartsassCompiler{binary: binary}
}

func (c *GodartsassCompiler) start() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler != nil {
		return c.transpiler, nil
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: c.binary,
		LogEventHandler: func(evt godartsass.LogEvent) {
			log.Warn().Str("compiler", "sass").Msg(evt.Message)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start sass compiler %q: %w", c.binary, err)
	}
	c.transpiler = t
	return t, nil
}

func (c *GodartsassCompiler) Compile(ctx context.Context, req SassRequest) (SassResult, error) {
	if err := ctx.Err(); err != nil {
		return SassResult{}, err
	}

	t, err := c.start()
	if err != nil {
		return SassResult{}, err
	}

	res, err := t.Execute(godartsass.Args{
		Source:                  req.Source,
		URL:                     "file://" + filepath.ToSlash(req.Path),
		SourceSyntax:            sourceSyntax(req.Path),
		OutputStyle:             godartsass.OutputStyleExpanded,
		IncludePaths:            req.IncludePaths,
		EnableSourceMap:         req.SourceMap,
		SourceMapIncludeSources: req.SourceMap,
	})
	if err != nil {
		return SassResult{}, err
	}

	return SassResult{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

func (c *GodartsassCompiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler == nil {
		return nil
	}
	err := c.transpiler.Close()
	c.transpiler = nil
	return err
}

func sourceSyntax(path string) godartsass.SourceSyntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}

// sassPlugin loads .scss and .sass modules through the compiler and hands
// the result to esbuild's CSS loader, which applies vendor prefixing.
func sassPlugin(ctx context.Context, compiler SassCompiler, includePaths []string, sourceMap bool) api.Plugin {
	return api.Plugin{
		Name: "sass",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.s[ac]ss$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				src, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				res, err := compiler.Compile(ctx, SassRequest{
					Path:         args.Path,
					Source:       string(src),
					IncludePaths: includePaths,
					SourceMap:    sourceMap,
				})
				if err != nil {
					return api.OnLoadResult{Errors: []api.Message{sassMessage(args.Path, string(src), err)}}, nil
				}

				contents := res.CSS
				if sourceMap && res.SourceMap != "" {
					contents += "\n" + inlineSourceMapComment(res.SourceMap)
				}

				return api.OnLoadResult{
					Contents:   &contents,
					Loader:     api.LoaderCSS,
					ResolveDir: filepath.Dir(args.Path),
				}, nil
			})
		},
	}
}

// sassMessage locates a compile failure from the span dart-sass reports. The
// span may point into an imported partial rather than the loaded stylesheet.
func sassMessage(path, src string, err error) api.Message {
	var serr godartsass.SassError
	if !errors.As(err, &serr) {
		return api.Message{Text: err.Error(), Location: &api.Location{File: path}}
	}

	file := path
	if u, perr := url.Parse(serr.Span.Url); perr == nil && u.Scheme == "file" && u.Path != "" {
		file = filepath.FromSlash(u.Path)
	}
	if file != path {
		data, rerr := os.ReadFile(file)
		if rerr != nil {
			return api.Message{Text: serr.Message, Location: &api.Location{File: file}}
		}
		src = string(data)
	}

	line, lineText := lineAt(src, serr.Span.Start.Offset)
	return api.Message{
		Text: serr.Message,
		Location: &api.Location{
			File:     file,
			Line:     line,
			Column:   serr.Span.Start.Column,
			Length:   max(serr.Span.End.Offset-serr.Span.Start.Offset, 0),
			LineText: lineText,
		},
	}
}

// lineAt returns the 1-based line containing offset and that line's text.
func lineAt(src string, offset int) (int, string) {
	if offset < 0 || offset > len(src) {
		return 0, ""
	}
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := strings.IndexByte(src[offset:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += offset
	}
	return strings.Count(src[:offset], "\n") + 1, src[start:end]
}

func inlineSourceMapComment(sourceMap string) string {
	return "/*# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(sourceMap)) + " */"
}
