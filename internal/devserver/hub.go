package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

const (
	EventReload    = "reload"
	EventCSSUpdate = "css-update"
	EventError     = "error"

	clientBuffer = 16
)

// Event is pushed to live-reload clients as JSON.
type Event struct {
	Type string `json:"type"`
	// Target is the stylesheet URL for css-update and the message for error.
	Target string `json:"target,omitempty"`
}

// Hub fans events out to connected server-sent-event clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan Event
	metrics *telemetry.Metrics
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]chan Event{},
		metrics: telemetry.GetMetrics(),
	}
}

// Subscribe registers a client. The returned func unregisters it.
func (h *Hub) Subscribe(ctx context.Context) (string, <-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, clientBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	h.metrics.LiveReloadClients.Add(ctx, 1)

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			h.metrics.LiveReloadClients.Add(ctx, -1)
		})
	}
}

// Publish delivers evt to every client. Clients that are not keeping up miss
// the event rather than blocking the build.
func (h *Hub) Publish(ctx context.Context, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.metrics.ReloadEventsTotal.Add(ctx, 1)
	for id, ch := range h.clients {
		select {
		case ch <- evt:
		default:
			log.Warn().Str("client", id).Str("type", evt.Type).Msg("Live reload client is slow, dropping event")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams events to an EventSource until the request ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	id, events, cancel := h.Subscribe(r.Context())
	defer cancel()

	logger := zerolog.Ctx(r.Context()).With().Str("client", id).Logger()

	// the stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Error().Err(err).Msg("Streaming not supported")
		return
	}
	logger.Debug().Msg("Live reload client connected")

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("Live reload client disconnected")
			return
		case evt := <-events:
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
