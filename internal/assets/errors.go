package assets

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates the build cannot start: an unresolvable entry or include path
	ErrConfiguration = errors.New("configuration error")
	// ErrTransform indicates a source file failed to compile
	ErrTransform = errors.New("transform error")
	// ErrIO indicates an artifact could not be read or written
	ErrIO = errors.New("io error")
	// ErrMinify indicates an already bundled artifact could not be parsed for minification
	ErrMinify = errors.New("minify error")
	// ErrLint indicates lint errors were found and the variant treats them as fatal
	ErrLint = errors.New("lint failed")
)

// ConfigurationError is fatal and reported before any work starts.
type ConfigurationError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error: " + e.Msg
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Location identifies a position within a source file.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// TransformError carries the file and line context of a compile failure.
type TransformError struct {
	Entry string
	Location
	Text string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error: %s: %s", e.Location, e.Text)
}

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// IOError wraps a failed read or write of an artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error        { return e.Err }
func (e *IOError) Is(target error) bool { return target == ErrIO }

// MinifyError is fatal to the minify variant; there is no fallback artifact.
type MinifyError struct {
	Location
	Text string
}

func (e *MinifyError) Error() string {
	return fmt.Sprintf("minify error: %s: %s", e.Location, e.Text)
}

func (e *MinifyError) Is(target error) bool { return target == ErrMinify }
