package assets

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// EmitterOptions configures where bundles are written.
type EmitterOptions struct {
	OutputDir string
	// CSSDir receives stylesheets, relative paths resolve against OutputDir
	CSSDir   string
	Metafile bool
	Gzip     bool
}

// Emitter writes bundles to disk, overwriting existing artifacts.
type Emitter struct {
	outputDir string
	cssDir    string
	metafile  bool
	gzip      bool
}

func NewEmitter(opts EmitterOptions) *Emitter {
	cssDir := opts.CSSDir
	switch {
	case cssDir == "":
		cssDir = opts.OutputDir
	case !filepath.IsAbs(cssDir):
		cssDir = filepath.Join(opts.OutputDir, cssDir)
	}

	return &Emitter{
		outputDir: opts.OutputDir,
		cssDir:    cssDir,
		metafile:  opts.Metafile,
		gzip:      opts.Gzip,
	}
}

// Emit writes every output file of the bundles. Any write failure is fatal.
func (e *Emitter) Emit(bundles []*Bundle) ([]Artifact, error) {
	var artifacts []Artifact

	for _, bundle := range bundles {
		for _, file := range bundle.Files {
			kind := kindOf(file.Path)
			path := file.Path
			if kind == KindCSS || (kind == KindSourceMap && filepath.Ext(trimMapExt(path)) == ".css") {
				path = filepath.Join(e.cssDir, filepath.Base(path))
			}

			if err := writeArtifact(path, file.Contents); err != nil {
				return artifacts, err
			}
			artifacts = append(artifacts, Artifact{Entry: bundle.Entry.Name, Kind: kind, Path: path, Size: len(file.Contents)})

			if e.gzip && (kind == KindJS || kind == KindCSS) {
				gz, err := gzipArtifact(path, file.Contents)
				if err != nil {
					return artifacts, err
				}
				gz.Entry = bundle.Entry.Name
				artifacts = append(artifacts, gz)
			}
		}

		if e.metafile {
			path := filepath.Join(e.outputDir, bundle.Entry.Name+".meta.json")
			if err := writeArtifact(path, []byte(bundle.Metafile)); err != nil {
				return artifacts, err
			}
			artifacts = append(artifacts, Artifact{Entry: bundle.Entry.Name, Kind: KindMetafile, Path: path, Size: len(bundle.Metafile)})
		}
	}

	for _, a := range artifacts {
		log.Info().Str("entry", a.Entry).Str("kind", string(a.Kind)).Str("file", a.Path).Int("bytes", a.Size).Msg("Built file")
	}

	return artifacts, nil
}

func trimMapExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil { //nolint:gosec
		return &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func gzipArtifact(path string, data []byte) (Artifact, error) {
	var buf bytes.Buffer

	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return Artifact{}, err
	}
	zw.Name = filepath.Base(path)
	if _, err := zw.Write(data); err != nil {
		return Artifact{}, &IOError{Op: "compress", Path: path, Err: err}
	}
	if err := zw.Close(); err != nil {
		return Artifact{}, &IOError{Op: "compress", Path: path, Err: err}
	}

	gzPath := path + ".gz"
	if err := writeArtifact(gzPath, buf.Bytes()); err != nil {
		return Artifact{}, err
	}
	return Artifact{Kind: KindGzip, Path: gzPath, Size: buf.Len()}, nil
}
