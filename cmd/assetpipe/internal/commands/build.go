package commands

import (
	"context"

	"github.com/wolfeidau/assetpipe/internal/config"
)

// BuildDevCmd runs the development variant.
type BuildDevCmd struct{}

func (c *BuildDevCmd) Run(ctx context.Context, globals *Globals) error {
	defer globals.setup(ctx)()

	_, err := runVariant(ctx, globals, config.VariantDev)
	return err
}

// BuildProdCmd runs the production variant. It reads the output of a
// completed build-dev; running both against one output directory at the same
// time is unsupported.
type BuildProdCmd struct{}

func (c *BuildProdCmd) Run(ctx context.Context, globals *Globals) error {
	defer globals.setup(ctx)()

	_, err := runVariant(ctx, globals, config.VariantProd)
	return err
}

// BuildCmd runs both variants in order, stopping if dev fails.
type BuildCmd struct{}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	defer globals.setup(ctx)()

	if _, err := runVariant(ctx, globals, config.VariantDev); err != nil {
		return err
	}

	_, err := runVariant(ctx, globals, config.VariantProd)
	return err
}
