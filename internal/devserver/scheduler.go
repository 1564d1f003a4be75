package devserver

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

// RebuildFunc rebuilds after the given source paths changed.
type RebuildFunc func(ctx context.Context, changed []string)

// Scheduler runs at most one rebuild at a time. Requests arriving while a
// rebuild runs are folded into a single follow-up rebuild carrying the union
// of their paths. Every rebuild runs with the context given to NewScheduler.
type Scheduler struct {
	ctx context.Context

	mu      sync.Mutex
	running bool
	pending map[string]struct{}
	all     bool // a queued request asked for a full rebuild
	queued  bool
	idle    *sync.Cond

	run     RebuildFunc
	metrics *telemetry.Metrics
}

// NewScheduler creates a scheduler whose rebuilds stop once ctx is done.
func NewScheduler(ctx context.Context, run RebuildFunc) *Scheduler {
	s := &Scheduler{
		ctx:     ctx,
		run:     run,
		pending: map[string]struct{}{},
		metrics: telemetry.GetMetrics(),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Request schedules a rebuild for changed and returns immediately. An empty
// changed asks for a full rebuild.
func (s *Scheduler) Request(changed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		if s.queued {
			s.metrics.RebuildsCoalescedTotal.Add(s.ctx, 1)
		}
		s.queued = true
		s.all = s.all || len(changed) == 0
		for _, p := range changed {
			s.pending[p] = struct{}{}
		}
		log.Debug().Strs("paths", changed).Msg("Rebuild in progress, queued")
		return
	}

	s.running = true
	go s.loop(slices.Clone(changed))
}

func (s *Scheduler) loop(changed []string) {
	for {
		if s.ctx.Err() == nil {
			s.run(s.ctx, changed)
		}

		s.mu.Lock()
		if !s.queued || s.ctx.Err() != nil {
			s.running = false
			s.queued = false
			s.all = false
			clear(s.pending)
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		changed = nil
		if !s.all {
			for p := range s.pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
		}
		clear(s.pending)
		s.queued = false
		s.all = false
		s.mu.Unlock()
	}
}

// Wait blocks until no rebuild is running or queued.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running {
		s.idle.Wait()
	}
}
