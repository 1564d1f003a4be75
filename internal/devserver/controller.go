package devserver

import (
	"bytes"
	"context"
	"slices"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// Builder is the part of assets.Builder the controller drives.
type Builder interface {
	Build(ctx context.Context) (*assets.Manifest, error)
	Rebuild(ctx context.Context, entries []string, prev *assets.Manifest) (*assets.Manifest, error)
	PublicPath() string
}

// Controller owns the current manifest and turns source changes into
// rebuilds and live-reload events.
type Controller struct {
	builder Builder
	hub     *Hub
	current atomic.Pointer[assets.Manifest]
}

func NewController(builder Builder, hub *Hub) *Controller {
	return &Controller{builder: builder, hub: hub}
}

// Manifest returns the last successful manifest, nil before the first build.
func (c *Controller) Manifest() *assets.Manifest {
	return c.current.Load()
}

// Start runs the initial build.
func (c *Controller) Start(ctx context.Context) error {
	m, err := c.builder.Build(ctx)
	if err != nil {
		return err
	}
	c.current.Store(m)
	c.publishErrors(ctx, m)
	return nil
}

// Rebuild rebuilds the entry points affected by changed and notifies clients.
func (c *Controller) Rebuild(ctx context.Context, changed []string) {
	prev := c.current.Load()
	entries := affectedEntries(prev, changed)

	log.Info().Strs("changed", changed).Strs("entries", entries).Msg("Rebuilding")

	next, err := c.builder.Rebuild(ctx, entries, prev)
	if err != nil {
		log.Error().Err(err).Msg("Rebuild failed, serving previous build")
		c.hub.Publish(ctx, Event{Type: EventError, Target: err.Error()})
		return
	}
	c.current.Store(next)

	if c.publishErrors(ctx, next) {
		return
	}

	styles, other := diff(prev, next)
	switch {
	case other:
		c.hub.Publish(ctx, Event{Type: EventReload})
	case len(styles) > 0:
		for _, a := range styles {
			c.hub.Publish(ctx, Event{Type: EventCSSUpdate, Target: assets.URL(c.builder.PublicPath(), a.FileName)})
		}
	}
}

func (c *Controller) publishErrors(ctx context.Context, m *assets.Manifest) bool {
	for _, err := range m.Errors {
		c.hub.Publish(ctx, Event{Type: EventError, Target: err.Error()})
	}
	return len(m.Errors) > 0
}

// affectedEntries selects the entry points whose inputs include a changed
// path. Nil means all, used when a path is unknown to the last build.
func affectedEntries(prev *assets.Manifest, changed []string) []string {
	if prev == nil || len(changed) == 0 {
		return nil
	}
	var entries []string
	for _, p := range changed {
		names := prev.EntriesFor(p)
		if len(names) == 0 {
			return nil
		}
		entries = append(entries, names...)
	}
	slices.Sort(entries)
	return slices.Compact(entries)
}

// diff returns the stylesheets that changed between two manifests and
// whether anything other than a stylesheet changed.
func diff(prev, next *assets.Manifest) ([]*assets.Artifact, bool) {
	if prev == nil {
		return nil, true
	}

	var styles []*assets.Artifact
	other := false
	for _, a := range next.Artifacts() {
		old, ok := prev.Get(a.Key())
		if ok && old.FileName == a.FileName && bytes.Equal(old.Contents, a.Contents) {
			continue
		}
		// a renamed or new stylesheet is not linked from the page yet
		if ok && a.Kind == transform.KindStyle && old.FileName == a.FileName {
			styles = append(styles, a)
			continue
		}
		other = true
	}
	for _, key := range prev.Keys() {
		if _, ok := next.Get(key); !ok {
			other = true
		}
	}
	return styles, other
}
