package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/devserver"
)

type DevCmd struct {
	Host        string   `help:"Dev server listen host, overrides the config." env:"ASSETPIPE_HOST"`
	Port        int      `help:"Dev server port, overrides the config." env:"ASSETPIPE_PORT"`
	CORSOrigins []string `help:"Allowed CORS origins for served assets." default:"*" env:"ASSETPIPE_CORS_ORIGINS"`
}

func (c *DevCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := globals.setup(ctx)
	if err != nil {
		return err
	}
	defer s.shutdown()

	return c.serve(ctx, s)
}

func (c *DevCmd) serve(ctx context.Context, s *session) error {
	cfg := s.cfg

	builder, err := s.newBuilder()
	if err != nil {
		return err
	}

	index := assets.NewIndexPage(cfg.DevServer.Title)
	if cfg.DevServer.IndexTemplate != "" {
		index, err = assets.NewIndexPageFromFile(cfg.DevServer.Title, cfg.Path(cfg.DevServer.IndexTemplate), nil)
		if err != nil {
			return &assets.ConfigError{Field: "devServer.indexTemplate", Err: err}
		}
	}

	srv := devserver.New(builder, devserver.Options{
		SourceDir:  cfg.SourceDir(),
		IgnoreDirs: []string{cfg.OutputDir()},
		Debounce:   cfg.Debounce(),
		Handler: devserver.HandlerOptions{
			ContentDir:      cfg.ContentDir(),
			FallbackToIndex: cfg.FallbackToIndex(),
			Index:           index,
			AllowedOrigins:  c.CORSOrigins,
		},
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	host, port := cfg.DevServer.Host, cfg.DevServer.Port
	if c.Host != "" {
		host = c.Host
	}
	if c.Port != 0 {
		port = c.Port
	}
	httpServer := configureHTTPServer(listenAddr(host, port), srv.Handler())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", "http://"+httpServer.Addr+builder.PublicPath()).Bool("hot", cfg.HotEnabled()).Msg("Starting dev server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Watch(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Stopping dev server")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
