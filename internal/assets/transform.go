package assets

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// maxLoweringPasses bounds the rewrite loop in case esbuild truncates its
// error list on very large files.
const maxLoweringPasses = 8

// declarationSite is a let or const keyword esbuild refused to lower.
type declarationSite struct {
	keyword string
	line    int
	column  int
}

// lowerBlockScoping rewrites let and const declarations to var for targets
// that predate them, which esbuild refuses to do itself. esbuild's parser
// locates every offending keyword; each is replaced in place and padded to its
// original width so line and column positions, and therefore source maps and
// error locations, are unchanged.
//
// A binding that would behave differently as a var (one that shadows another
// binding in its function, or a loop binding captured by a closure) is not
// rewritten; each such binding is returned as a TransformError.
func lowerBlockScoping(path, src string, target api.Target) (string, error) {
	if target != api.ES5 {
		return src, nil
	}

	sites := declarationSites(path, src, target)
	if len(sites) == 0 {
		return src, nil
	}

	decls, conflicts, err := analyzeBlockScoping(src)
	if err != nil {
		// esbuild reports the unsupported declarations itself
		log.Debug().Err(err).Str("file", path).Msg("Skipping block scoping rewrite")
		return src, nil
	}
	if len(conflicts) > 0 {
		return src, scopeErrors(path, decls, sites, conflicts)
	}

	for range maxLoweringPasses {
		var changed bool
		src, changed = rewriteDeclarations(src, sites)
		if !changed {
			break
		}
		sites = declarationSites(path, src, target)
	}

	return src, nil
}

func declarationSites(path, src string, target api.Target) []declarationSite {
	result := api.Transform(src, api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: path,
		Target:     target,
		LogLevel:   api.LogLevelSilent,
	})

	var sites []declarationSite
	for _, msg := range result.Errors {
		if msg.Location == nil {
			continue
		}
		keyword, ok := unsupportedDeclaration(msg.Text)
		if !ok {
			continue
		}
		sites = append(sites, declarationSite{
			keyword: keyword,
			line:    msg.Location.Line,
			column:  msg.Location.Column,
		})
	}

	slices.SortFunc(sites, func(a, b declarationSite) int {
		if a.line != b.line {
			return a.line - b.line
		}
		return a.column - b.column
	})
	return sites
}

func rewriteDeclarations(src string, sites []declarationSite) (string, bool) {
	lines := strings.SplitAfter(src, "\n")
	changed := false

	for _, site := range sites {
		idx := site.line - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		line := lines[idx]
		col := site.column
		if col < 0 || col+len(site.keyword) > len(line) || line[col:col+len(site.keyword)] != site.keyword {
			continue
		}

		lines[idx] = line[:col] + padVar(len(site.keyword)) + line[col+len(site.keyword):]
		changed = true
	}

	return strings.Join(lines, ""), changed
}

// scopeErrors locates each conflict at its declaration keyword. esbuild and
// the scope analysis both see declarations in source order, so the nth
// declaration matches the nth site.
func scopeErrors(path string, decls []*lexicalDecl, sites []declarationSite, conflicts []scopeConflict) error {
	aligned := len(decls) == len(sites)

	errs := make([]error, 0, len(conflicts))
	for _, c := range conflicts {
		d := decls[c.decl]
		terr := &TransformError{
			Location: Location{File: path},
			Text:     fmt.Sprintf("cannot lower %s %q to var: %s", d.keyword, c.name, c.reason),
		}
		if aligned && sites[c.decl].keyword == d.keyword {
			terr.Line = sites[c.decl].line
			terr.Column = sites[c.decl].column
		}
		errs = append(errs, terr)
	}
	return errors.Join(errs...)
}

func unsupportedDeclaration(text string) (string, bool) {
	for _, keyword := range []string{"const", "let"} {
		if strings.HasPrefix(text, "Transforming "+keyword+" to the configured target environment") {
			return keyword, true
		}
	}
	return "", false
}

func padVar(width int) string {
	return "var" + strings.Repeat(" ", width-len("var"))
}

// blockScopingPlugin applies lowerBlockScoping to project sources as esbuild
// loads them. Installed packages are left untouched.
func blockScopingPlugin(target api.Target) api.Plugin {
	return api.Plugin{
		Name: "block-scoping",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.m?js$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if strings.Contains(args.Path, "/node_modules/") || args.Namespace != "file" {
					return api.OnLoadResult{}, nil
				}

				src, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				contents, err := lowerBlockScoping(args.Path, string(src), target)
				if err != nil {
					return api.OnLoadResult{Errors: transformMessages(err)}, nil
				}
				return api.OnLoadResult{
					Contents: &contents,
					Loader:   api.LoaderJS,
				}, nil
			})
		},
	}
}

// transformMessages converts TransformErrors back into esbuild messages so
// they surface through the build result with their locations.
func transformMessages(err error) []api.Message {
	var msgs []api.Message
	for _, e := range unjoin(err) {
		var terr *TransformError
		if !errors.As(e, &terr) {
			msgs = append(msgs, api.Message{Text: e.Error()})
			continue
		}
		msgs = append(msgs, api.Message{
			Text:     terr.Text,
			Location: &api.Location{File: terr.File, Line: terr.Line, Column: terr.Column},
		})
	}
	return msgs
}
