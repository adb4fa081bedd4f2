package assets

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LintIssue is a single finding reported by the lint stage.
type LintIssue struct {
	Location
	Rule     string
	Severity Severity
	Message  string
}

func (i LintIssue) String() string {
	return fmt.Sprintf("%s: %s: %s (%s)", i.Location, i.Severity, i.Message, i.Rule)
}

// LintReport collects the findings of a lint run.
type LintReport struct {
	Files  []string
	Issues []LintIssue
}

func (r *LintReport) count(sev Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}

func (r *LintReport) Errors() int   { return r.count(SeverityError) }
func (r *LintReport) Warnings() int { return r.count(SeverityWarning) }

// LintRule checks the text of a single source file.
type LintRule interface {
	Name() string
	Check(file string, src []byte) []LintIssue
}

// LintOptions configures a Linter.
type LintOptions struct {
	Root          string
	Include       string
	Exclude       string
	MaxLineLength int
	Rules         []LintRule
}

// Linter statically checks JavaScript sources before transformation.
type Linter struct {
	root    string
	include string
	exclude string
	rules   []LintRule
}

// NewLinter creates a linter with the syntax check plus the default text rules.
func NewLinter(opts LintOptions) (*Linter, error) {
	if !doublestar.ValidatePattern(opts.Include) {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("invalid lint include pattern %q", opts.Include)}
	}
	if opts.Exclude != "" && !doublestar.ValidatePattern(opts.Exclude) {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("invalid lint exclude pattern %q", opts.Exclude)}
	}

	rules := opts.Rules
	if rules == nil {
		rules = []LintRule{
			syntaxRule{},
			noDebuggerRule{},
			noTrailingSpacesRule{},
		}
		if opts.MaxLineLength > 0 {
			rules = append(rules, maxLenRule{limit: opts.MaxLineLength})
		}
	}

	return &Linter{
		root:    opts.Root,
		include: opts.Include,
		exclude: opts.Exclude,
		rules:   rules,
	}, nil
}

// Files returns the root relative paths matched by include and not by exclude.
func (l *Linter) Files() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(l.root), l.include, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob lint sources: %w", err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if l.exclude != "" {
			if excluded, _ := doublestar.Match(l.exclude, m); excluded {
				continue
			}
		}
		files = append(files, m)
	}
	return files, nil
}

// Lint runs every rule over every matched file and logs the findings.
func (l *Linter) Lint(ctx context.Context) (*LintReport, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	report := &LintReport{Files: files}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src, err := fs.ReadFile(os.DirFS(l.root), file)
		if err != nil {
			return nil, &IOError{Op: "read", Path: filepath.Join(l.root, file), Err: err}
		}

		for _, rule := range l.rules {
			report.Issues = append(report.Issues, rule.Check(file, src)...)
		}
	}

	for _, issue := range report.Issues {
		evt := log.Warn()
		if issue.Severity == SeverityError {
			evt = log.Error()
		}
		evt.Str("file", issue.File).
			Int("line", issue.Line).
			Int("column", issue.Column).
			Str("rule", issue.Rule).
			Msg(issue.Message)
	}

	log.Info().
		Int("files", len(files)).
		Int("errors", report.Errors()).
		Int("warnings", report.Warnings()).
		Msg("Lint finished")

	return report, nil
}

// syntaxRule reports parse errors and esbuild's suspicious code diagnostics.
type syntaxRule struct{}

func (syntaxRule) Name() string { return "syntax" }

func (r syntaxRule) Check(file string, src []byte) []LintIssue {
	result := api.Transform(string(src), api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: file,
		LogLevel:   api.LogLevelSilent,
	})

	issues := make([]LintIssue, 0, len(result.Errors)+len(result.Warnings))
	for _, msg := range result.Errors {
		issues = append(issues, LintIssue{Location: messageLocation(file, msg), Rule: r.Name(), Severity: SeverityError, Message: msg.Text})
	}
	for _, msg := range result.Warnings {
		rule := r.Name()
		if msg.ID != "" {
			rule = msg.ID
		}
		issues = append(issues, LintIssue{Location: messageLocation(file, msg), Rule: rule, Severity: SeverityWarning, Message: msg.Text})
	}
	return issues
}

type noDebuggerRule struct{}

func (noDebuggerRule) Name() string { return "no-debugger" }

func (r noDebuggerRule) Check(file string, src []byte) []LintIssue {
	var issues []LintIssue
	for i, line := range strings.Split(string(src), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "debugger" || strings.HasPrefix(trimmed, "debugger;") {
			issues = append(issues, LintIssue{
				Location: Location{File: file, Line: i + 1, Column: strings.Index(line, "debugger")},
				Rule:     r.Name(),
				Severity: SeverityError,
				Message:  "Unexpected 'debugger' statement",
			})
		}
	}
	return issues
}

type noTrailingSpacesRule struct{}

func (noTrailingSpacesRule) Name() string { return "no-trailing-spaces" }

func (r noTrailingSpacesRule) Check(file string, src []byte) []LintIssue {
	var issues []LintIssue
	for i, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimRight(line, " \t")
		if len(trimmed) != len(line) {
			issues = append(issues, LintIssue{
				Location: Location{File: file, Line: i + 1, Column: len(trimmed)},
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Message:  "Trailing spaces not allowed",
			})
		}
	}
	return issues
}

type maxLenRule struct {
	limit int
}

func (maxLenRule) Name() string { return "max-len" }

func (r maxLenRule) Check(file string, src []byte) []LintIssue {
	var issues []LintIssue
	for i, line := range strings.Split(string(src), "\n") {
		if n := len([]rune(strings.TrimSuffix(line, "\r"))); n > r.limit {
			issues = append(issues, LintIssue{
				Location: Location{File: file, Line: i + 1, Column: r.limit},
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Line length %d exceeds the maximum of %d", n, r.limit),
			})
		}
	}
	return issues
}

func messageLocation(file string, msg api.Message) Location {
	if msg.Location == nil {
		return Location{File: file}
	}
	loc := Location{File: msg.Location.File, Line: msg.Location.Line, Column: msg.Location.Column}
	if loc.File == "" {
		loc.File = file
	}
	return loc
}
