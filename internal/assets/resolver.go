package assets

import (
	"os"
	"path/filepath"

	"github.com/wolfeidau/assetpipe/internal/config"
)

// Entry is a resolved entry point.
type Entry struct {
	Name string
	Path string
}

// Resolver turns configured paths into absolute, existing files.
type Resolver struct {
	root       string
	mainFields []string
}

// NewResolver creates a resolver rooted at root.
func NewResolver(root string, mainFields []string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &ConfigurationError{Path: root, Msg: "invalid root", Err: err}
	}
	return &Resolver{root: abs, mainFields: mainFields}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string {
	return r.root
}

// MainFields returns the package.json fields consulted when resolving packages.
func (r *Resolver) MainFields() []string {
	return r.mainFields
}

// NodePaths returns the module search roots.
func (r *Resolver) NodePaths() []string {
	return []string{filepath.Join(r.root, "node_modules"), r.root}
}

// Abs joins a relative path onto the root without checking existence.
func (r *Resolver) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.root, path)
}

// Resolve returns the absolute path of an existing regular file.
func (r *Resolver) Resolve(path string) (string, error) {
	abs := r.Abs(path)

	info, err := os.Stat(abs)
	if err != nil {
		return "", &ConfigurationError{Path: abs, Msg: "missing entry", Err: err}
	}
	if info.IsDir() {
		return "", &ConfigurationError{Path: abs, Msg: "entry is a directory"}
	}

	return abs, nil
}

// ResolveDir returns the absolute path of an existing directory.
func (r *Resolver) ResolveDir(path string) (string, error) {
	abs := r.Abs(path)

	info, err := os.Stat(abs)
	if err != nil {
		return "", &ConfigurationError{Path: abs, Msg: "missing include path", Err: err}
	}
	if !info.IsDir() {
		return "", &ConfigurationError{Path: abs, Msg: "include path is not a directory"}
	}

	return abs, nil
}

// ResolveEntries resolves every entry of a variant in name order.
func (r *Resolver) ResolveEntries(v *config.Variant) ([]Entry, error) {
	entries := make([]Entry, 0, len(v.Entries))
	for _, name := range v.EntryNames() {
		path, err := r.Resolve(v.Entries[name])
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Path: path})
	}
	return entries, nil
}
