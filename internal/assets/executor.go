package assets

import (
	"context"
	"fmt"
	"io/fs"
	"slices"

	"github.com/wolfeidau/assetpipe/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs files through their matched chains of transform steps.
type Executor struct {
	fsys     fs.FS
	registry *transform.Registry
	matcher  *Matcher
	env      transform.Env
	tracer   trace.Tracer
}

func NewExecutor(fsys fs.FS, registry *transform.Registry, matcher *Matcher, env transform.Env, tracer trace.Tracer) *Executor {
	e := &Executor{
		fsys:     fsys,
		registry: registry,
		matcher:  matcher,
		env:      env,
		tracer:   tracer,
	}
	e.env.Resolve = e.Process
	return e
}

// Process matches a path against the rules and runs the selected chains.
func (e *Executor) Process(ctx context.Context, path string) (*transform.Asset, error) {
	rules, err := e.matcher.Resolve(path)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, path, rules)
}

// Run reads the source once and feeds it to every chain. The outputs of the
// chains are concatenated in rule order.
func (e *Executor) Run(ctx context.Context, path string, rules []Rule) (*transform.Asset, error) {
	ctx, span := e.tracer.Start(ctx, "transform", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	src, err := fs.ReadFile(e.fsys, transform.StripQuery(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var result *transform.Asset
	for _, rule := range rules {
		asset := &transform.Asset{Path: path, Kind: transform.KindFile, Contents: src}
		for _, ref := range rule.Use {
			step, err := e.registry.Lookup(ref.Step)
			if err != nil {
				return nil, &ConfigError{Field: "rules", Err: err}
			}
			asset, err = step.Apply(ctx, &e.env, asset, ref.Options)
			if err != nil {
				span.RecordError(err)
				return nil, &TransformError{StepID: ref.Step, Path: path, Cause: err}
			}
		}

		if result == nil {
			result = asset
			continue
		}
		merge(result, asset)
	}

	return result, nil
}

func merge(dst, src *transform.Asset) {
	dst.Contents = append(slices.Clip(dst.Contents), src.Contents...)
	if dst.Module != nil || src.Module != nil {
		dst.Module = append(slices.Clip(dst.Module), src.Module...)
	}
	for _, imp := range src.Imports {
		if !slices.Contains(dst.Imports, imp) {
			dst.Imports = append(dst.Imports, imp)
		}
	}
	for _, d := range src.Deps {
		if !slices.Contains(dst.Deps, d) {
			dst.Deps = append(dst.Deps, d)
		}
	}
}
