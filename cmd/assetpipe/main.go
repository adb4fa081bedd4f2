package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/assetpipe/cmd/assetpipe/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		BuildDev    commands.BuildDevCmd    `cmd:"" help:"Run the development variant: lint, transpile, bundle and minify stylesheets"`
		BuildProd   commands.BuildProdCmd   `cmd:"" help:"Run the production variant: minify the development bundle"`
		Build       commands.BuildCmd       `cmd:"" help:"Run build-dev to completion, then build-prod"`
		Lint        commands.LintCmd        `cmd:"" help:"Lint JavaScript sources without building"`
		PrintConfig commands.PrintConfigCmd `cmd:"" help:"Print the effective build configuration"`
		Debug       bool                    `help:"Enable debug mode."`
		Config      string                  `help:"Path to the build file." default:"assetpipe.yaml" env:"ASSETPIPE_CONFIG"`
		Telemetry   bool                    `help:"Export traces and metrics over OTLP." env:"ASSETPIPE_TELEMETRY"`
		Version     kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("assetpipe"),
		kong.Description("Front-end asset build pipeline."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:     cli.Debug,
		Version:   version,
		Config:    cli.Config,
		Telemetry: cli.Telemetry,
	})
	cmd.FatalIfErrorf(err)
}
