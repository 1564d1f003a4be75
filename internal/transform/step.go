package transform

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Kind classifies the content a step produced.
type Kind string

const (
	KindScript Kind = "script"
	KindStyle  Kind = "style"
	KindFile   Kind = "file"
)

// Asset is the unit threaded through a chain of steps.
type Asset struct {
	// Path is the source-relative path, including any query suffix.
	Path     string
	Kind     Kind
	Contents []byte
	// Imports maps specifiers found in the contents to source-relative paths.
	Imports []Import
	// Deps are source paths inlined into Contents, tracked for rebuilds.
	Deps []string
	// Extract moves a style into a CSS artifact instead of injecting it at runtime.
	Extract bool
	// Chunk splits an extracted style into its own chunk artifact.
	Chunk bool
	// Module is the JS view of a style or file asset, set by the step that
	// produced it. Script assets use Contents directly.
	Module []byte
}

// Import is a relative reference discovered by a step.
type Import struct {
	Specifier string
	Path      string
}

// Clone returns a shallow copy with its own import slice.
func (a *Asset) Clone() *Asset {
	c := *a
	c.Imports = append([]Import(nil), a.Imports...)
	c.Deps = append([]string(nil), a.Deps...)
	return &c
}

// Options are passed verbatim from the rule configuration.
type Options map[string]any

// String returns the string option or def when absent.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns the bool option or def when absent.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// ResolveFunc re-submits a referenced path to the rule matcher and executor.
type ResolveFunc func(ctx context.Context, path string) (*Asset, error)

// Env carries build wide capabilities, decided once per build.
type Env struct {
	Hot        bool
	Minify     bool
	PublicPath string
	Resolve    ResolveFunc
}

// Step is a single transformation in a chain.
type Step interface {
	Name() string
	Apply(ctx context.Context, env *Env, in *Asset, opts Options) (*Asset, error)
}

// ErrMalformedInput is returned by steps that cannot parse their input.
var ErrMalformedInput = errors.New("malformed input")

// Registry is an ordered table of steps keyed by id.
type Registry struct {
	order []string
	steps map[string]Step
}

// NewRegistry returns a registry holding the built-in steps.
func NewRegistry() *Registry {
	r := &Registry{steps: map[string]Step{}}
	r.Register(&StyleCompiler{})
	r.Register(&ExtractToFile{})
	r.Register(&TextEmbedder{})
	r.Register(&Transpiler{})
	r.Register(&Passthrough{})
	return r
}

// Register adds or replaces a step, keeping first registration order.
func (r *Registry) Register(s Step) {
	if _, ok := r.steps[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.steps[s.Name()] = s
}

// Lookup returns the step for id.
func (r *Registry) Lookup(id string) (Step, error) {
	s, ok := r.steps[id]
	if !ok {
		return nil, fmt.Errorf("unknown transform step %q", id)
	}
	return s, nil
}

// Names returns the registered step ids in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// StripQuery removes a "?query" suffix from a path.
func StripQuery(p string) string {
	if before, _, ok := strings.Cut(p, "?"); ok {
		return before
	}
	return p
}

// ResolveRelative joins a relative specifier onto the directory of from.
// Query suffixes on the specifier are kept.
func ResolveRelative(from, specifier string) string {
	spec, query, hasQuery := strings.Cut(specifier, "?")
	p := path.Clean(path.Join(path.Dir(StripQuery(from)), spec))
	if hasQuery {
		return p + "?" + query
	}
	return p
}

// IsRelative reports whether a specifier refers to a local file.
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}
