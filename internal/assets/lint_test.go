package assets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinter_Files(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"source/js/app.js":                    "var a = 1;\n",
		"source/js/lib/util.js":               "var b = 2;\n",
		"source/js/node_modules/dep/index.js": "var c = 3;\n",
		"source/sass/main.scss":               ".a { color: red; }\n",
	})

	l, err := NewLinter(LintOptions{Root: root, Include: "source/js/**/*.js", Exclude: "**/node_modules/**"})
	require.NoError(t, err)

	files, err := l.Files()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"source/js/app.js", "source/js/lib/util.js"}, files)
}

func TestLinter_Lint(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"source/js/clean.js":    "var a = 1;\n",
		"source/js/debug.js":    "function f() {\n  debugger;\n}\n",
		"source/js/spaces.js":   "var a = 1;  \n",
		"source/js/broken.js":   "var = ;\n",
		"source/js/longline.js": "var aVeryLongIdentifierName = 'this line is far too long';\n",
	})

	l, err := NewLinter(LintOptions{Root: root, Include: "source/js/*.js", MaxLineLength: 40})
	require.NoError(t, err)

	report, err := l.Lint(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Files, 5)

	rules := map[string][]LintIssue{}
	for _, issue := range report.Issues {
		rules[issue.Rule] = append(rules[issue.Rule], issue)
	}

	require.Len(t, rules["no-debugger"], 1)
	assert.Equal(t, "source/js/debug.js", rules["no-debugger"][0].File)
	assert.Equal(t, 2, rules["no-debugger"][0].Line)
	assert.Equal(t, SeverityError, rules["no-debugger"][0].Severity)

	require.Len(t, rules["no-trailing-spaces"], 1)
	assert.Equal(t, "source/js/spaces.js", rules["no-trailing-spaces"][0].File)
	assert.Equal(t, 10, rules["no-trailing-spaces"][0].Column)

	require.NotEmpty(t, rules["syntax"])
	assert.Equal(t, "source/js/broken.js", rules["syntax"][0].File)
	assert.Equal(t, 1, rules["syntax"][0].Line)

	require.Len(t, rules["max-len"], 1)
	assert.Equal(t, "source/js/longline.js", rules["max-len"][0].File)

	assert.GreaterOrEqual(t, report.Errors(), 2)
	assert.GreaterOrEqual(t, report.Warnings(), 2)
}

func TestLinter_InvalidPattern(t *testing.T) {
	_, err := NewLinter(LintOptions{Root: t.TempDir(), Include: "source/[js"})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLinter_Canceled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.js": "var a;\n"})

	l, err := NewLinter(LintOptions{Root: root, Include: "*.js"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Lint(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
