package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/transform"
)

type Options struct {
	// Source files are read from this filesystem, usually os.DirFS(sourceRoot)
	SourceFS fs.FS
	// Entry points in build order
	EntryPoints []EntryPoint
	// Rules in declaration order
	Rules []Rule
	// Fail on files no rule matches instead of copying them
	Strict bool
	// Output directory for built files
	OutputDir string
	// Public base path prefixed to artifact URLs (e.g., "/")
	PublicPath string
	// Build mode, decided once per process
	Mode Mode
	// Instrument scripts for live reload, only honoured in development mode
	Hot bool
	// Maximum number of files transformed in parallel, defaults to GOMAXPROCS
	Concurrency int
	// Step registry, defaults to transform.NewRegistry()
	Registry *transform.Registry
}

// validate checks the options before any build work starts.
func (o *Options) validate() error {
	if o.SourceFS == nil {
		return &ConfigError{Field: "sourceRoot", Err: errors.New("source filesystem is required")}
	}
	if o.OutputDir == "" {
		return &ConfigError{Field: "outputRoot", Err: errors.New("output directory is required")}
	}
	if o.Mode != ModeDevelopment && o.Mode != ModeProduction {
		return &ConfigError{Field: "mode", Err: fmt.Errorf("unknown mode %q", o.Mode)}
	}
	if len(o.EntryPoints) == 0 {
		return &ConfigError{Field: "entryPoints", Err: errors.New("at least one entry point is required")}
	}

	seen := map[string]bool{}
	for i, ep := range o.EntryPoints {
		if ep.Name == "" || strings.ContainsAny(ep.Name, `/\`) {
			return &ConfigError{Field: "entryPoints", Err: fmt.Errorf("invalid entry point name %q", ep.Name)}
		}
		if seen[ep.Name] {
			return &ConfigError{Field: "entryPoints", Err: fmt.Errorf("duplicate entry point %q", ep.Name)}
		}
		seen[ep.Name] = true
		if len(ep.Files) == 0 {
			return &ConfigError{Field: "entryPoints." + ep.Name, Err: errors.New("no source files")}
		}
		files := make([]string, len(ep.Files))
		for j, f := range ep.Files {
			files[j] = cleanSourcePath(f)
		}
		o.EntryPoints[i].Files = files
	}

	for i, r := range o.Rules {
		if r.Test == nil {
			return &ConfigError{Field: fmt.Sprintf("rules[%d].test", i), Err: errors.New("pattern is required")}
		}
		if len(r.Use) == 0 {
			return &ConfigError{Field: fmt.Sprintf("rules[%d].use", i), Err: errors.New("chain has no steps")}
		}
		for _, ref := range r.Use {
			if _, err := o.Registry.Lookup(ref.Step); err != nil {
				return &ConfigError{Field: fmt.Sprintf("rules[%d].use", i), Err: err}
			}
		}
	}
	return nil
}

// cleanSourcePath turns "./src/index.js" into the fs.FS form "src/index.js".
func cleanSourcePath(p string) string {
	name, query, hasQuery := strings.Cut(p, "?")
	name = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, `\`, "/")), "/")
	if hasQuery {
		return name + "?" + query
	}
	return name
}
