package devserver

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/minio/crc64nvme"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/assets"
	httpmiddleware "github.com/wolfeidau/assetpipe/internal/http"
	"github.com/wolfeidau/assetpipe/internal/logger"
)

// RebuildPath triggers a full rebuild on POST, relative to the public base path.
const RebuildPath = "__assetpipe/rebuild"

type HandlerOptions struct {
	PublicPath string
	// ContentDir holds static files and an optional index.html
	ContentDir      string
	FallbackToIndex bool
	// Index renders the page used when ContentDir has no index.html
	Index          *assets.IndexPage
	AllowedOrigins []string
	// Rebuild is called by POST RebuildPath, nil disables the endpoint
	Rebuild func()
}

type handler struct {
	controller *Controller
	opts       HandlerOptions
}

// NewHandler serves the current build, static files and the live-reload
// event stream.
func NewHandler(controller *Controller, hub *Hub, opts HandlerOptions) http.Handler {
	if opts.PublicPath == "" {
		opts.PublicPath = "/"
	}
	if opts.Index == nil {
		opts.Index = assets.NewIndexPage("assetpipe")
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	h := &handler{controller: controller, opts: opts}

	mux := http.NewServeMux()
	// not compressed, gzip buffering would hold events back
	mux.Handle("GET "+assets.URL(opts.PublicPath, assets.EventsPath), hub)
	if opts.Rebuild != nil {
		mux.Handle("POST "+assets.URL(opts.PublicPath, RebuildPath), csrf.New().Handler(http.HandlerFunc(h.rebuild)))
	}
	mux.Handle("/", gzhttp.GzipHandler(http.HandlerFunc(h.serve)))

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})

	return httpmiddleware.Chain(mux,
		c.Handler,
		httpmiddleware.ClientIP(),
		logger.Requests(log.Logger),
		httpmiddleware.NoCache(),
	)
}

func (h *handler) rebuild(w http.ResponseWriter, r *http.Request) {
	h.opts.Rebuild()
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if m := h.controller.Manifest(); m != nil {
		if name, ok := strings.CutPrefix(r.URL.Path, h.opts.PublicPath); ok {
			if a, ok := m.Lookup(name); ok {
				serveArtifact(w, r, a)
				return
			}
		}
	}

	if h.serveStatic(w, r, r.URL.Path) {
		return
	}

	if h.opts.FallbackToIndex {
		if h.serveStatic(w, r, "/index.html") {
			return
		}
		h.opts.Index.Handler(h.controller.Manifest, h.opts.PublicPath).ServeHTTP(w, r)
		return
	}

	http.NotFound(w, r)
}

// serveStatic serves a regular file below ContentDir, reporting whether it did.
func (h *handler) serveStatic(w http.ResponseWriter, r *http.Request, urlPath string) bool {
	if h.opts.ContentDir == "" {
		return false
	}

	name := filepath.Join(h.opts.ContentDir, filepath.FromSlash(path.Clean("/"+urlPath)))
	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}
	if err != nil || info.IsDir() {
		return false
	}

	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

func serveArtifact(w http.ResponseWriter, r *http.Request, a *assets.Artifact) {
	w.Header().Set("ETag", ETag(a.Contents))
	http.ServeContent(w, r, a.FileName, time.Time{}, bytes.NewReader(a.Contents))
}

// ETag is a strong validator derived from the artifact contents.
func ETag(contents []byte) string {
	h := crc64nvme.New()
	_, _ = h.Write(contents)
	return fmt.Sprintf(`"%016x"`, h.Sum64())
}
