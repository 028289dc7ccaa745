package config

import (
	"testing"
	"time"

	"mclsp/internal/flavor"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MCSTAS", "")
	t.Setenv("MCXTRACE", "")
	t.Setenv("MCCODE", "")
	t.Setenv("MCLSP_CLANG", "")
	t.Setenv("MCLSP_CHECK_TIMEOUT", "")
	cfg := Load()
	if cfg.CheckTimeout != DefaultCheckTimeout {
		t.Errorf("timeout = %v, want %v", cfg.CheckTimeout, DefaultCheckTimeout)
	}
	if cfg.Clang != "" || cfg.McStasRoot != "" {
		t.Errorf("unexpected values: %+v", cfg)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("MCSTAS", "/opt/mcstas")
	t.Setenv("MCXTRACE", "/opt/mcxtrace")
	t.Setenv("MCLSP_CLANG", "clang-17")
	t.Setenv("MCLSP_CHECK_TIMEOUT", "3s")
	cfg := Load()
	if cfg.McStasRoot != "/opt/mcstas" || cfg.McXtraceRoot != "/opt/mcxtrace" {
		t.Errorf("roots = %+v", cfg)
	}
	if cfg.Clang != "clang-17" {
		t.Errorf("clang = %q", cfg.Clang)
	}
	if cfg.CheckTimeout != 3*time.Second {
		t.Errorf("timeout = %v", cfg.CheckTimeout)
	}
}

func TestLoadBadTimeoutFallsBack(t *testing.T) {
	t.Setenv("MCLSP_CHECK_TIMEOUT", "soon")
	if got := Load().CheckTimeout; got != DefaultCheckTimeout {
		t.Errorf("timeout = %v, want default", got)
	}
}

func TestInstallRoots(t *testing.T) {
	cfg := Config{McStasRoot: "/opt/mcstas", McXtraceRoot: "/opt/mcxtrace", McCodeRoot: "/opt/mccode"}
	stas := cfg.InstallRoots(flavor.McStas)
	if len(stas) != 2 || stas[0] != "/opt/mcstas" || stas[1] != "/opt/mccode" {
		t.Errorf("mcstas roots = %v", stas)
	}
	xt := cfg.InstallRoots(flavor.McXtrace)
	if len(xt) != 2 || xt[0] != "/opt/mcxtrace" {
		t.Errorf("mcxtrace roots = %v", xt)
	}
}
