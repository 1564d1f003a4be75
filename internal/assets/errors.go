package assets

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates the build configuration is malformed
	ErrConfig = errors.New("invalid configuration")
	// ErrUnhandledAssetType indicates no rule matched a file in strict mode
	ErrUnhandledAssetType = errors.New("unhandled asset type")
	// ErrTransform indicates a transform step failed
	ErrTransform = errors.New("transform failed")
	// ErrIO indicates an artifact could not be written
	ErrIO = errors.New("output write failed")
)

// ConfigError is fatal and raised before any build work starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// UnhandledAssetTypeError is raised for unmatched files in strict mode.
type UnhandledAssetTypeError struct {
	Path string
}

func (e *UnhandledAssetTypeError) Error() string {
	return fmt.Sprintf("no rule matches %s", e.Path)
}

func (e *UnhandledAssetTypeError) Is(target error) bool { return target == ErrUnhandledAssetType }

// TransformError attributes a failure to the step and file that caused it.
type TransformError struct {
	StepID string
	Path   string
	Cause  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s: step %s: %v", e.Path, e.StepID, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// IOError is returned when an artifact write fails after its retry.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// BuildError aborts a build and names the entry point being built.
type BuildError struct {
	Entry string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("build failed: %v", e.Err)
	}
	return fmt.Sprintf("build of entry %q failed: %v", e.Entry, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
