package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ModeBundle resolves, lints, transforms and bundles entries.
	ModeBundle = "bundle"
	// ModeMinify rewrites an already bundled artifact into a smaller one.
	ModeMinify = "minify"

	// VariantDev is the name of the development variant.
	VariantDev = "dev"
	// VariantProd is the name of the production variant.
	VariantProd = "prod"
)

// ErrInvalid is returned when a configuration file fails validation.
var ErrInvalid = errors.New("invalid build configuration")

// Config is the top level build file.
type Config struct {
	// Root directory all relative paths resolve against
	Root     string              `yaml:"root"`
	Variants map[string]*Variant `yaml:"variants"`
}

// Variant is one complete named pipeline configuration.
type Variant struct {
	Name       string            `yaml:"-"`
	Mode       string            `yaml:"mode"`
	Entries    map[string]string `yaml:"entries"`
	OutputDir  string            `yaml:"output_dir"`
	Filename   string            `yaml:"filename"`
	CSSDir     string            `yaml:"css_dir,omitempty"`
	Target     string            `yaml:"target,omitempty"`
	SourceMap  bool              `yaml:"source_map"`
	MainFields []string          `yaml:"main_fields,omitempty"`
	Browsers   []string          `yaml:"browsers,omitempty"`
	Provide    map[string]string `yaml:"provide,omitempty"`
	Lint       *Lint             `yaml:"lint,omitempty"`
	Sass       *Sass             `yaml:"sass,omitempty"`
	PostBuild  *PostBuild        `yaml:"post_build,omitempty"`
	Minify     *Minify           `yaml:"minify,omitempty"`
	Metafile   bool              `yaml:"metafile,omitempty"`
	Gzip       bool              `yaml:"gzip,omitempty"`
}

type Lint struct {
	Include       string `yaml:"include"`
	Exclude       string `yaml:"exclude"`
	FailOnError   bool   `yaml:"fail_on_error"`
	MaxLineLength int    `yaml:"max_line_length,omitempty"`
}

type Sass struct {
	IncludePaths []string `yaml:"include_paths"`
	SourceMap    bool     `yaml:"source_map"`
	// Binary is the dart-sass executable, "sass" on PATH when empty
	Binary string `yaml:"binary,omitempty"`
}

type PostBuild struct {
	MinifyCSS bool   `yaml:"minify_css"`
	Suffix    string `yaml:"suffix,omitempty"`
}

type Minify struct {
	Comments bool `yaml:"comments"`
	Compress bool `yaml:"compress"`
	Mangle   bool `yaml:"mangle"`
	Warnings bool `yaml:"warnings"`
}

// Default returns the build configuration used when no build file exists.
func Default(root string) *Config {
	return &Config{
		Root: root,
		Variants: map[string]*Variant{
			VariantDev: {
				Name:       VariantDev,
				Mode:       ModeBundle,
				Entries:    map[string]string{"app": "source/js/app.js"},
				OutputDir:  "template/assets/js",
				Filename:   "[name].js",
				CSSDir:     "../css",
				Target:     "es5",
				SourceMap:  true,
				MainFields: []string{"webpack", "browserify", "web", "hobo", "main"},
				Browsers:   []string{"last 2 versions"},
				Provide: map[string]string{
					"Promise": "es6-promise#Promise",
					"fetch":   "whatwg-fetch#fetch",
				},
				Lint: &Lint{
					Include: "source/js/**/*.js",
					Exclude: "**/node_modules/**",
				},
				Sass: &Sass{
					IncludePaths: []string{"source/sass"},
					SourceMap:    true,
				},
				PostBuild: &PostBuild{MinifyCSS: true, Suffix: ".min"},
			},
			VariantProd: {
				Name:      VariantProd,
				Mode:      ModeMinify,
				Entries:   map[string]string{"app": "template/assets/js/app.js"},
				OutputDir: "template/assets/js",
				Filename:  "[name].min.js",
				Target:    "es5",
				Minify: &Minify{
					Comments: false,
					Compress: true,
					Mangle:   true,
					Warnings: false,
				},
			},
		},
	}
}

// Load reads the build file at path. A missing file yields the defaults
// rooted at the file's directory.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(filepath.Dir(absPath)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	switch {
	case cfg.Root == "":
		cfg.Root = filepath.Dir(absPath)
	case !filepath.IsAbs(cfg.Root):
		cfg.Root = filepath.Join(filepath.Dir(absPath), cfg.Root)
	}

	for name, v := range cfg.Variants {
		if v == nil {
			return nil, fmt.Errorf("%w: variant %q is empty", ErrInvalid, name)
		}
		v.Name = name
		v.applyDefaults()
	}

	return cfg, nil
}

// Variant returns the named variant after validating it.
func (c *Config) Variant(name string) (*Variant, error) {
	v, ok := c.Variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown variant %q (have %s)", ErrInvalid, name, strings.Join(c.Names(), ", "))
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Names returns the variant names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Variants))
	for name := range c.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal renders the configuration back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (v *Variant) applyDefaults() {
	if v.Mode == "" {
		v.Mode = ModeBundle
	}
	if v.Target == "" {
		v.Target = "es5"
	}
	if v.Mode == ModeBundle && v.CSSDir == "" {
		v.CSSDir = "../css"
	}
	if v.PostBuild != nil && v.PostBuild.Suffix == "" {
		v.PostBuild.Suffix = ".min"
	}
}

// Validate checks the variant for errors that would stop any work.
func (v *Variant) Validate() error {
	if v.Mode != ModeBundle && v.Mode != ModeMinify {
		return fmt.Errorf("%w: variant %q: unknown mode %q", ErrInvalid, v.Name, v.Mode)
	}
	if len(v.Entries) == 0 {
		return fmt.Errorf("%w: variant %q: no entries", ErrInvalid, v.Name)
	}
	if v.OutputDir == "" {
		return fmt.Errorf("%w: variant %q: output_dir is required", ErrInvalid, v.Name)
	}
	if !strings.Contains(v.Filename, "[name]") || !strings.HasSuffix(v.Filename, ".js") {
		return fmt.Errorf("%w: variant %q: filename %q must contain [name] and end in .js", ErrInvalid, v.Name, v.Filename)
	}
	if v.Mode == ModeMinify && v.Minify == nil {
		return fmt.Errorf("%w: variant %q: minify mode requires a minify block", ErrInvalid, v.Name)
	}
	return nil
}

// EntryNames returns the entry names in sorted order.
func (v *Variant) EntryNames() []string {
	names := make([]string, 0, len(v.Entries))
	for name := range v.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputName substitutes the entry name into the filename template.
func (v *Variant) OutputName(entry string) string {
	return strings.ReplaceAll(v.Filename, "[name]", entry)
}
