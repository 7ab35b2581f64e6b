// Package cmd provides CLI commands for the hipforge binary.
package cmd

import (
	"github.com/offcut-io/hipforge/cli/config"
	"github.com/urfave/cli/v2"
)

// Exit codes for the hipforge CLI.
// Test failures are separated from pipeline errors so CI can distinguish
// "the suite found regressions" from "the pipeline itself broke".
const (
	exitSuccess       = 0
	exitTestFailures  = 1
	exitPipelineError = 2
	exitInvalidInput  = 3
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// ConfigFlag names the YAML config file providing flag defaults.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to hipforge.yaml config file",
	}
)

// loadConfig loads the config file named by --config, or the default file
// when present. Flags always override config values.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if c.IsSet("config") {
		return config.Load(c.String("config"))
	}
	return config.LoadDefault()
}

// stringOr resolves a string setting: explicit flag > config > default.
func stringOr(c *cli.Context, name, cfgValue, fallback string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgValue != "" {
		return cfgValue
	}
	return fallback
}

// intOr resolves an int setting: explicit flag > config > default.
func intOr(c *cli.Context, name string, cfgValue, fallback int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if cfgValue != 0 {
		return cfgValue
	}
	return fallback
}

// boolOr resolves a bool setting: explicit flag > config.
func boolOr(c *cli.Context, name string, cfgValue bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgValue
}

// sliceOr resolves a string-slice setting: explicit flag > config.
func sliceOr(c *cli.Context, name string, cfgValue []string) []string {
	if c.IsSet(name) {
		return c.StringSlice(name)
	}
	return cfgValue
}
