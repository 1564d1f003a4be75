package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"runtime"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"github.com/wolfeidau/assetpipe/internal/transform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ManifestFile is written to the output root after every build.
const ManifestFile = "manifest.json"

// script extensions tried for extensionless relative imports
var scriptExtensions = []string{".js", ".ts", ".tsx", ".jsx", ".mjs"}

// module is one processed source file of an entry point.
type module struct {
	path  string
	kind  transform.Kind
	asset *transform.Asset
	err   error
	// specs maps the specifiers used by the module to resolved module paths.
	specs map[string]string
}

// Builder orchestrates rule matching, transforms, naming and writing.
type Builder struct {
	opts     Options
	matcher  *Matcher
	executor *Executor
	writer   *Writer
	state    *stateMachine
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
}

// NewBuilder validates the options and prepares a builder.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Registry == nil {
		opts.Registry = transform.NewRegistry()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.PublicPath == "" {
		opts.PublicPath = "/"
	}
	opts.EntryPoints = slices.Clone(opts.EntryPoints)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tracer := otel.Tracer(telemetry.InstrumentationName)
	matcher := NewMatcher(opts.Rules, opts.Strict)
	env := transform.Env{
		Hot:        opts.Hot && opts.Mode == ModeDevelopment,
		Minify:     opts.Mode == ModeProduction,
		PublicPath: opts.PublicPath,
	}

	return &Builder{
		opts:     opts,
		matcher:  matcher,
		executor: NewExecutor(opts.SourceFS, opts.Registry, matcher, env, tracer),
		writer:   NewWriter(opts.OutputDir),
		state:    newStateMachine(),
		tracer:   tracer,
		metrics:  telemetry.GetMetrics(),
	}, nil
}

// Mode returns the build mode.
func (b *Builder) Mode() Mode { return b.opts.Mode }

// PublicPath returns the public base path used for artifact URLs.
func (b *Builder) PublicPath() string { return b.opts.PublicPath }

// OutputDir returns the output root.
func (b *Builder) OutputDir() string { return b.opts.OutputDir }

// State returns the phase of the current or last build.
func (b *Builder) State() State { return b.state.Current() }

// EntryNames returns the entry point names in build order.
func (b *Builder) EntryNames() []string {
	names := make([]string, len(b.opts.EntryPoints))
	for i, ep := range b.opts.EntryPoints {
		names[i] = ep.Name
	}
	return names
}

// Build builds every entry point into a fresh manifest.
func (b *Builder) Build(ctx context.Context) (*Manifest, error) {
	return b.Rebuild(ctx, nil, nil)
}

// Rebuild builds the named entry points, or all when entries is nil. Artifacts
// of the other entry points are taken from prev. In development mode prev also
// supplies the last good artifact when a transform fails.
func (b *Builder) Rebuild(ctx context.Context, entries []string, prev *Manifest) (*Manifest, error) {
	started := time.Now()
	ctx, span := b.tracer.Start(ctx, "build", trace.WithAttributes(
		attribute.String("mode", string(b.opts.Mode)),
		attribute.StringSlice("entries", entries),
	))
	defer span.End()

	manifest, err := b.rebuild(ctx, entries, prev)

	attrs := metric.WithAttributes(attribute.String("mode", string(b.opts.Mode)))
	b.metrics.BuildsTotal.Add(ctx, 1, attrs)
	b.metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
	if err != nil {
		span.RecordError(err)
		b.metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		return nil, err
	}
	if manifest != nil && len(manifest.Errors) > 0 {
		b.metrics.TransformErrorsTotal.Add(ctx, int64(len(manifest.Errors)), attrs)
	}

	log.Info().
		Str("mode", string(b.opts.Mode)).
		Int("artifacts", len(manifest.Keys())).
		Int("errors", len(manifest.Errors)).
		Dur("duration", time.Since(started)).
		Msg("Build complete")
	return manifest, nil
}

func (b *Builder) rebuild(ctx context.Context, entries []string, prev *Manifest) (*Manifest, error) {
	b.state.Reset()
	if err := b.state.Transition(StateResolving); err != nil {
		return nil, err
	}

	selected, err := b.selectEntries(entries)
	if err != nil {
		return nil, b.fail(err)
	}
	for _, ep := range selected {
		if err := b.checkEntryFiles(ep); err != nil {
			return nil, b.fail(err)
		}
	}

	if err := b.state.Transition(StateTransforming); err != nil {
		return nil, err
	}

	collected := make(map[string][]*module, len(selected))
	var tolerated []error
	for _, ep := range selected {
		modules, err := b.collect(ctx, ep)
		if err != nil {
			return nil, b.fail(&BuildError{Entry: ep.Name, Err: err})
		}
		for _, m := range modules {
			if m.err == nil {
				continue
			}
			if b.opts.Mode == ModeProduction {
				return nil, b.fail(&BuildError{Entry: ep.Name, Err: m.err})
			}
			log.Error().Err(m.err).Str("entry", ep.Name).Str("path", m.path).Msg("Transform failed, keeping previous artifact")
			tolerated = append(tolerated, m.err)
		}
		collected[ep.Name] = modules
	}

	if err := b.state.Transition(StateNaming); err != nil {
		return nil, err
	}

	manifest := NewManifest()
	manifest.Errors = tolerated
	var fresh []*Artifact
	for _, ep := range b.opts.EntryPoints {
		modules, ok := collected[ep.Name]
		if !ok {
			carryEntry(manifest, prev, ep.Name)
			continue
		}
		fresh = append(fresh, b.assemble(manifest, prev, ep, modules)...)
	}

	for _, a := range fresh {
		if err := b.writer.Write(ctx, a.FileName, a.Contents); err != nil {
			return nil, b.fail(err)
		}
		b.metrics.ArtifactsWrittenTotal.Add(ctx, 1)
		log.Debug().Str("file", a.FileName).Int("bytes", len(a.Contents)).Msg("Built file")
	}

	index, err := json.MarshalIndent(manifest.Files(b.opts.PublicPath), "", "  ")
	if err != nil {
		return nil, b.fail(err)
	}
	if err := b.writer.Write(ctx, ManifestFile, append(index, '\n')); err != nil {
		return nil, b.fail(err)
	}

	if err := b.state.Transition(StateComplete); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (b *Builder) fail(err error) error {
	if terr := b.state.Transition(StateFailed); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

func (b *Builder) selectEntries(names []string) ([]EntryPoint, error) {
	if names == nil {
		return b.opts.EntryPoints, nil
	}
	var selected []EntryPoint
	for _, ep := range b.opts.EntryPoints {
		if slices.Contains(names, ep.Name) {
			selected = append(selected, ep)
		}
	}
	for _, name := range names {
		if !slices.ContainsFunc(selected, func(ep EntryPoint) bool { return ep.Name == name }) {
			return nil, &ConfigError{Field: "entryPoints", Err: fmt.Errorf("unknown entry point %q", name)}
		}
	}
	return selected, nil
}

func (b *Builder) checkEntryFiles(ep EntryPoint) error {
	for _, f := range ep.Files {
		if _, err := fs.Stat(b.opts.SourceFS, transform.StripQuery(f)); err != nil {
			return &ConfigError{Field: "entryPoints." + ep.Name, Err: fmt.Errorf("source file %s: %w", f, err)}
		}
	}
	return nil
}

// collect processes the files of an entry point wave by wave, following the
// relative imports reported by the steps. Files within a wave are transformed
// in parallel; the resulting order only depends on the sources.
func (b *Builder) collect(ctx context.Context, ep EntryPoint) ([]*module, error) {
	visited := map[string]bool{}
	var wave []string
	for _, f := range ep.Files {
		if !visited[f] {
			visited[f] = true
			wave = append(wave, f)
		}
	}

	var ordered []*module
	for len(wave) > 0 {
		results := make([]*module, len(wave))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.opts.Concurrency)
		for i, p := range wave {
			g.Go(func() error {
				m, err := b.process(gctx, p)
				results[i] = m
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, m := range results {
			ordered = append(ordered, m)
			if m.err != nil {
				continue
			}
			for _, imp := range m.asset.Imports {
				resolved := b.resolveImport(imp.Path)
				m.specs[imp.Specifier] = resolved
				if !visited[resolved] {
					visited[resolved] = true
					next = append(next, resolved)
				}
			}
		}
		wave = next
	}
	return ordered, ctx.Err()
}

// process runs one file. Transform failures are kept on the module so the
// caller can apply the mode's failure policy; anything else is fatal.
func (b *Builder) process(ctx context.Context, p string) (*module, error) {
	m := &module{path: p, specs: map[string]string{}}

	rules, err := b.matcher.Resolve(p)
	if err != nil {
		return nil, err
	}
	m.kind = expectedKind(rules)

	asset, err := b.executor.Run(ctx, p, rules)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			return nil, err
		}
		var terr *TransformError
		if !errors.As(err, &terr) {
			err = &TransformError{StepID: "read", Path: p, Cause: err}
		}
		m.err = err
		return m, nil
	}

	m.asset = asset
	m.kind = asset.Kind
	return m, nil
}

// resolveImport maps an extensionless script import onto an existing file.
func (b *Builder) resolveImport(p string) string {
	if b.exists(p) {
		return p
	}
	name := transform.StripQuery(p)
	for _, ext := range scriptExtensions {
		if b.exists(name + ext) {
			return name + ext
		}
	}
	for _, ext := range scriptExtensions {
		if candidate := path.Join(name, "index"+ext); b.exists(candidate) {
			return candidate
		}
	}
	return p
}

func (b *Builder) exists(p string) bool {
	info, err := fs.Stat(b.opts.SourceFS, transform.StripQuery(p))
	return err == nil && !info.IsDir()
}

// assemble names the artifacts of one entry point and stores them in the
// manifest. It returns the artifacts that need writing.
func (b *Builder) assemble(manifest, prev *Manifest, ep EntryPoint, modules []*module) []*Artifact {
	var (
		fresh      []*Artifact
		entryIDs   []string
		styles     bytes.Buffer
		hasScript  bool
		hasStyle   bool
		failed     = map[transform.Kind]bool{}
		inputs     []string
		entryFiles = map[string]bool{}
	)
	for _, f := range ep.Files {
		entryFiles[f] = true
	}

	put := func(a *Artifact) {
		nameArtifact(a, b.opts.Mode)
		manifest.Put(a)
		fresh = append(fresh, a)
	}

	for _, m := range modules {
		inputs = append(inputs, transform.StripQuery(m.path))
		if m.err != nil {
			failed[m.kind] = true
			if entryFiles[m.path] && m.kind == transform.KindScript {
				hasScript = true
			}
			continue
		}
		inputs = append(inputs, m.asset.Deps...)

		switch m.asset.Kind {
		case transform.KindScript:
			if entryFiles[m.path] {
				hasScript = true
				entryIDs = append(entryIDs, m.path)
			}
		case transform.KindStyle:
			if !m.asset.Extract {
				// an entry stylesheet lands in the entry CSS even when it is not extracted
				if entryFiles[m.path] {
					hasStyle = true
					styles.Write(m.asset.Contents)
				}
				continue
			}
			if m.asset.Chunk {
				put(&Artifact{LogicalName: ChunkID(m.path), Kind: transform.KindStyle, Contents: m.asset.Contents, Entry: ep.Name, Chunk: true})
				continue
			}
			hasStyle = true
			styles.Write(m.asset.Contents)
		case transform.KindFile:
			put(&Artifact{LogicalName: transform.StripQuery(m.path), Kind: transform.KindFile, Contents: m.asset.Contents, Entry: ep.Name})
		}
	}

	scriptKey := ep.Name + ".js"
	styleKey := ep.Name + ".css"
	switch {
	case failed[transform.KindScript]:
		carryKey(manifest, prev, scriptKey)
	case hasScript:
		put(&Artifact{LogicalName: ep.Name, Kind: transform.KindScript, Contents: bundle(modules, entryIDs, b.executor.env.Hot, b.opts.PublicPath), Entry: ep.Name})
	}
	switch {
	case failed[transform.KindStyle]:
		carryKey(manifest, prev, styleKey)
	case hasStyle:
		put(&Artifact{LogicalName: ep.Name, Kind: transform.KindStyle, Contents: slices.Clone(styles.Bytes()), Entry: ep.Name})
	}
	if len(failed) > 0 && prev != nil {
		// imports of a failed module were not followed, keep what they produced last time
		for _, a := range prev.Entry(ep.Name) {
			if _, ok := manifest.Get(a.Key()); !ok {
				manifest.Put(a)
			}
		}
		inputs = append(inputs, prev.Inputs[ep.Name]...)
	}

	slices.Sort(inputs)
	manifest.Inputs[ep.Name] = slices.Compact(inputs)
	return fresh
}

func carryKey(manifest, prev *Manifest, key string) {
	if prev == nil {
		return
	}
	if a, ok := prev.Get(key); ok {
		manifest.Put(a)
	}
}

func carryEntry(manifest, prev *Manifest, entry string) {
	if prev == nil {
		return
	}
	for _, a := range prev.Entry(entry) {
		manifest.Put(a)
	}
	if inputs, ok := prev.Inputs[entry]; ok {
		manifest.Inputs[entry] = inputs
	}
}
