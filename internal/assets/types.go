package assets

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BuildMetadata is the subset of the esbuild metafile the pipeline reads.
type BuildMetadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes   int          `json:"bytes"`
	Imports []ImportInfo `json:"imports"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	Bytes      int          `json:"bytes"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	External bool   `json:"external,omitempty"`
}

func parseMetadata(metafile string) (*BuildMetadata, error) {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// Modules returns the bundled input paths in sorted order.
func (m *BuildMetadata) Modules() []string {
	if m == nil {
		return nil
	}
	modules := make([]string, 0, len(m.Inputs))
	for path := range m.Inputs {
		modules = append(modules, path)
	}
	sort.Strings(modules)
	return modules
}

type ArtifactKind string

const (
	KindJS        ArtifactKind = "js"
	KindCSS       ArtifactKind = "css"
	KindSourceMap ArtifactKind = "sourcemap"
	KindMetafile  ArtifactKind = "metafile"
	KindGzip      ArtifactKind = "gzip"
)

// Artifact is a file written by the pipeline.
type Artifact struct {
	Entry string
	Kind  ArtifactKind
	Path  string
	Size  int
}

func kindOf(path string) ArtifactKind {
	switch {
	case strings.HasSuffix(path, ".map"):
		return KindSourceMap
	case strings.HasSuffix(path, ".gz"):
		return KindGzip
	case filepath.Ext(path) == ".css":
		return KindCSS
	default:
		return KindJS
	}
}

// State is the lifecycle position of a variant build.
type State int

const (
	StateResolving State = iota
	StateTransforming
	StateBundling
	StatePostProcessing
	StateMinifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "RESOLVING"
	case StateTransforming:
		return "TRANSFORMING"
	case StateBundling:
		return "BUNDLING"
	case StatePostProcessing:
		return "POST_PROCESSING"
	case StateMinifying:
		return "MINIFYING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Result describes one run of a variant.
type Result struct {
	BuildID string
	Variant string
	State   State
	// States is every state the run passed through, in order
	States    []State
	Entries   []Entry
	Lint      *LintReport
	Artifacts []Artifact
	// Modules lists the bundled inputs per entry
	Modules map[string][]string
	// TransformErrors are per file failures; they fail the build but not the emission of other entries
	TransformErrors []error
	// HookErrors are reported but never change the outcome of the build
	HookErrors []error
	Duration   time.Duration
}

// Artifact returns the first artifact of the given kind for an entry.
func (r *Result) Artifact(entry string, kind ArtifactKind) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Entry == entry && a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}
