package config

import (
	"github.com/offcut-io/hipforge/testrun"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "hipforge.yaml"

// Config represents a hipforge.yaml configuration file.
// All values are optional and act as defaults for CLI flags.
// CLI flags always override config values.
type Config struct {
	Checkout CheckoutConfig `yaml:"checkout"`
	Build    BuildConfig    `yaml:"build"`
	Test     TestConfig     `yaml:"test"`
}

// CheckoutConfig holds source sync defaults from the config file.
type CheckoutConfig struct {
	Remote    string `yaml:"remote"`
	Dir       string `yaml:"dir"`
	Ref       string `yaml:"ref"`
	Depth     int    `yaml:"depth"`
	FetchJobs int    `yaml:"fetch_jobs"`
}

// BuildConfig holds native build defaults from the config file.
type BuildConfig struct {
	RocmDir    string   `yaml:"rocm_dir"`
	BuildDir   string   `yaml:"build_dir"`
	BuildType  string   `yaml:"build_type"`
	Targets    []string `yaml:"targets"`
	Jobs       int      `yaml:"jobs"`
	Curl       bool     `yaml:"curl"`
	OpenSSL    bool     `yaml:"openssl"`
	LLGuidance bool     `yaml:"llguidance"`
}

// TestConfig holds test run defaults from the config file.
type TestConfig struct {
	Suite   string `yaml:"suite"`
	SaveLog string `yaml:"save_log"`
	// SkipRules are evaluated before the built-in table, so a config rule
	// can widen the skip set or attach a more specific reason first.
	SkipRules []testrun.Rule `yaml:"skip_rules"`
	// NoDefaultSkips drops the built-in skip table entirely, leaving only
	// SkipRules in effect.
	NoDefaultSkips bool `yaml:"no_default_skips"`
}

// Rules returns the effective ordered skip-rule table.
func (c *TestConfig) Rules() []testrun.Rule {
	if c.NoDefaultSkips {
		return c.SkipRules
	}
	return append(append([]testrun.Rule(nil), c.SkipRules...), testrun.DefaultRules()...)
}
