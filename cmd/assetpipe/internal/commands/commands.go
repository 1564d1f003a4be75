package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

type Globals struct {
	Debug       bool
	Version     string
	Config      string
	Mode        string
	Telemetry   bool
	SampleRatio float64
}

// session is what every command needs before it can build.
type session struct {
	cfg      *config.Config
	mode     assets.Mode
	shutdown func()
}

// setup configures logging and telemetry, decides the build mode and loads
// the build config.
func (g *Globals) setup(ctx context.Context) (*session, error) {
	log.Logger = logger.Setup(g.Debug)

	mode, err := resolveMode(g.Mode, os.Getenv)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrDefault(g.Config)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, mode: mode, shutdown: func() {}}
	if g.Telemetry {
		log.Info().Msg("Telemetry is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "assetpipe",
			Version:     g.Version,
			SampleRatio: g.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		} else {
			s.shutdown = func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}
		}
	}

	log.Info().
		Str("version", g.Version).
		Str("mode", string(mode)).
		Str("source", cfg.SourceDir()).
		Str("output", cfg.OutputDir()).
		Msg("Starting assetpipe")
	return s, nil
}

// newBuilder creates a builder for the session's config and mode.
func (s *session) newBuilder() (*assets.Builder, error) {
	opts, err := s.cfg.BuildOptions(s.mode)
	if err != nil {
		return nil, err
	}
	return assets.NewBuilder(opts)
}

// resolveMode picks the build mode once per process: the explicit flag wins,
// otherwise `npm run prod` selects production.
func resolveMode(flag string, getenv func(string) string) (assets.Mode, error) {
	if strings.TrimSpace(flag) != "" {
		mode, err := assets.ParseMode(flag)
		if err != nil {
			return "", &assets.ConfigError{Field: "mode", Err: err}
		}
		return mode, nil
	}
	if getenv("npm_lifecycle_event") == "prod" {
		return assets.ModeProduction, nil
	}
	return assets.ModeDevelopment, nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func listenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
