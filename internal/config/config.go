// Package config collects the environment-driven settings of the server:
// installation roots for the component libraries, the external checker
// binary and its timeout. A .env file in the working directory is honored
// when present so development setups need no shell exports.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"

	"mclsp/internal/flavor"
)

// Config is the resolved environment configuration.
type Config struct {
	McStasRoot   string
	McXtraceRoot string
	McCodeRoot   string
	Clang        string
	CheckTimeout time.Duration
}

// DefaultCheckTimeout bounds one external checker invocation.
const DefaultCheckTimeout = 15 * time.Second

// Load reads the configuration from the environment. A missing .env file
// is not an error; missing variables leave zero values for callers to fall
// back from.
func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		McStasRoot:   os.Getenv("MCSTAS"),
		McXtraceRoot: os.Getenv("MCXTRACE"),
		McCodeRoot:   os.Getenv("MCCODE"),
		Clang:        os.Getenv("MCLSP_CLANG"),
		CheckTimeout: DefaultCheckTimeout,
	}
	if raw := os.Getenv("MCLSP_CHECK_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.CheckTimeout = d
		}
	}
	return cfg
}

// InstallRoots returns candidate installation directories for f, most
// specific first. Entries may not exist; callers filter.
func (c Config) InstallRoots(f flavor.Flavor) []string {
	var roots []string
	switch f {
	case flavor.McXtrace:
		if c.McXtraceRoot != "" {
			roots = append(roots, c.McXtraceRoot)
		}
	default:
		if c.McStasRoot != "" {
			roots = append(roots, c.McStasRoot)
		}
	}
	if c.McCodeRoot != "" {
		roots = append(roots, c.McCodeRoot)
	}
	return roots
}
