package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mnemosyne/mnemosyne/config"
)

// loadConfig builds the effective configuration for a run: start from
// Defaults, overlay a TOML file if --config was given, then overlay any
// flags the user set explicitly.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Defaults
	if file := ctx.String(configFileFlag.Name); file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	applyFlags(ctx, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
