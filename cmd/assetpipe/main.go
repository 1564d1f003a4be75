package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/assetpipe/cmd/assetpipe/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool    `help:"Enable debug mode." env:"ASSETPIPE_DEBUG"`
		Config    string  `help:"Build config file, YAML or TOML." default:"assetpipe.yaml" env:"ASSETPIPE_CONFIG"`
		Mode      string  `help:"Build mode, development or production. Defaults to production when npm_lifecycle_event is prod." env:"ASSETPIPE_MODE"`
		Telemetry bool    `help:"Export build metrics and traces over OTLP." env:"ASSETPIPE_TELEMETRY"`
		Sample    float64 `help:"Fraction of build traces exported when telemetry is on." default:"1" env:"ASSETPIPE_TRACE_SAMPLE"`
		Version   kong.VersionFlag

		Run   commands.RunCmd   `cmd:"" default:"1" help:"Build, then serve and watch in development mode"`
		Build commands.BuildCmd `cmd:"" help:"Build once and exit"`
		Dev   commands.DevCmd   `cmd:"" help:"Serve the build with live reload"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("assetpipe"),
		kong.Description("Declarative asset pipeline: transforms, bundles and serves front-end sources."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:       cli.Debug,
		Version:     version,
		Config:      cli.Config,
		Mode:        cli.Mode,
		Telemetry:   cli.Telemetry,
		SampleRatio: cli.Sample,
	})
	cmd.FatalIfErrorf(err)
}
