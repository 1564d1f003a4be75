package commands

import (
	"context"

	"github.com/wolfeidau/assetpipe/internal/assets"
)

// RunCmd builds once in production mode and serves with live reload in
// development mode.
type RunCmd struct {
	DevCmd `embed:""`
}

func (c *RunCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := globals.setup(ctx)
	if err != nil {
		return err
	}
	defer s.shutdown()

	if s.mode == assets.ModeProduction {
		return (&BuildCmd{}).build(ctx, s)
	}
	return c.serve(ctx, s)
}
