// Package devserver serves builds over HTTP, rebuilds on source changes and
// pushes live-reload events to connected browsers.
package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Options struct {
	// SourceDir is watched recursively
	SourceDir string
	// IgnoreDirs are not watched, typically the output root
	IgnoreDirs []string
	Debounce   time.Duration
	Handler    HandlerOptions
}

// Server ties the controller, scheduler, watcher and HTTP handler together.
type Server struct {
	opts       Options
	hub        *Hub
	controller *Controller
	scheduler  *Scheduler
	handler    http.Handler
	// stop cancels rebuilds once watching ends
	stop context.CancelFunc
}

func New(builder Builder, opts Options) *Server {
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}

	s := &Server{opts: opts, hub: NewHub()}
	s.controller = NewController(builder, s.hub)
	ctx, stop := context.WithCancel(context.Background())
	s.stop = stop
	s.scheduler = NewScheduler(ctx, s.controller.Rebuild)

	hopts := opts.Handler
	hopts.PublicPath = builder.PublicPath()
	hopts.Rebuild = func() {
		s.scheduler.Request(nil)
	}
	s.handler = NewHandler(s.controller, s.hub, hopts)
	return s
}

// Start runs the initial build.
func (s *Server) Start(ctx context.Context) error {
	return s.controller.Start(ctx)
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Controller() *Controller { return s.controller }

// Watch rebuilds on source changes until ctx is cancelled, then cancels any
// running rebuild and waits for it to return. No rebuilds run afterwards.
func (s *Server) Watch(ctx context.Context) error {
	defer s.scheduler.Wait()
	defer s.stop()

	w, err := NewWatcher(s.opts.SourceDir, s.opts.IgnoreDirs, s.opts.Debounce, func(changed []string) {
		s.scheduler.Request(changed)
	})
	if err != nil {
		return err
	}

	log.Info().Str("dir", s.opts.SourceDir).Dur("debounce", s.opts.Debounce).Msg("Watching for changes")

	return w.Run(ctx)
}
