package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/assetpipe/internal/assets"
)

type LintCmd struct {
	Variant string `help:"Variant whose lint settings are used" default:"dev"`
	Strict  bool   `help:"Exit non-zero when lint errors are found"`
}

func (c *LintCmd) Run(ctx context.Context, globals *Globals) error {
	defer globals.setup(ctx)()

	cfg, err := globals.loadConfig()
	if err != nil {
		return err
	}

	variant, err := globals.variant(cfg, c.Variant)
	if err != nil {
		return err
	}
	if variant.Lint == nil {
		return &assets.ConfigurationError{Path: globals.Config, Msg: "variant " + c.Variant + " has no lint settings"}
	}

	linter, err := assets.NewLinter(assets.LintOptions{
		Root:          cfg.Root,
		Include:       variant.Lint.Include,
		Exclude:       variant.Lint.Exclude,
		MaxLineLength: variant.Lint.MaxLineLength,
	})
	if err != nil {
		return err
	}

	report, err := linter.Lint(ctx)
	if err != nil {
		return err
	}

	for _, issue := range report.Issues {
		fmt.Println(issue)
	}

	if (c.Strict || variant.Lint.FailOnError) && report.Errors() > 0 {
		return fmt.Errorf("%w: %d errors", assets.ErrLint, report.Errors())
	}
	return nil
}
