package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Precedence for run settings: an explicitly set flag, then the config
// file value, then the flag default. A zero config value counts as unset.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveInt64(c *cli.Context, name string, cfgVal int64) int64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int64(name)
	}
	return cfgVal
}

func resolveFloat64(c *cli.Context, name string, cfgVal float64) float64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Float64(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) || !cfgVal {
		return c.Bool(name)
	}
	return cfgVal
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}
