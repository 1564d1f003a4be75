package commands

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/assets"
)

type BuildCmd struct {
	Clean   bool     `help:"Remove the output root before building." env:"ASSETPIPE_CLEAN"`
	Entries []string `help:"Only build these entry points." env:"ASSETPIPE_ENTRIES"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := globals.setup(ctx)
	if err != nil {
		return err
	}
	defer s.shutdown()

	return c.build(ctx, s)
}

func (c *BuildCmd) build(ctx context.Context, s *session) error {
	builder, err := s.newBuilder()
	if err != nil {
		return err
	}

	if c.Clean {
		log.Info().Str("dir", builder.OutputDir()).Msg("Cleaning output root")
		if err := os.RemoveAll(builder.OutputDir()); err != nil {
			return &assets.IOError{Path: builder.OutputDir(), Op: "clean", Err: err}
		}
	}

	var entries []string
	if len(c.Entries) > 0 {
		entries = c.Entries
	}
	manifest, err := builder.Rebuild(ctx, entries, nil)
	if err != nil {
		var berr *assets.BuildError
		if errors.As(err, &berr) {
			log.Error().Str("entry", berr.Entry).Err(berr.Err).Msg("Build failed")
		}
		return err
	}

	for _, a := range manifest.Artifacts() {
		log.Info().
			Str("key", a.Key()).
			Str("file", a.FileName).
			Int("bytes", len(a.Contents)).
			Msg("Artifact")
	}
	if len(manifest.Errors) > 0 {
		return errors.Join(manifest.Errors...)
	}
	return nil
}
