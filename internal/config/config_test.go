package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify scheduler defaults
	if cfg.Scheduler.MaxParallel != 3 {
		t.Errorf("Scheduler.MaxParallel = %d, want 3", cfg.Scheduler.MaxParallel)
	}
	if cfg.Scheduler.AutoThreshold != 1000 {
		t.Errorf("Scheduler.AutoThreshold = %d, want 1000", cfg.Scheduler.AutoThreshold)
	}
	if cfg.Scheduler.OutputLimit != 500 {
		t.Errorf("Scheduler.OutputLimit = %d, want 500", cfg.Scheduler.OutputLimit)
	}

	// Verify runner defaults
	if cfg.Runner.Kind != "claude" {
		t.Errorf("Runner.Kind = %q, want %q", cfg.Runner.Kind, "claude")
	}
	if cfg.Runner.LightModel != "haiku" || cfg.Runner.HeavyModel != "opus" {
		t.Errorf("Runner models = %q/%q, want haiku/opus", cfg.Runner.LightModel, cfg.Runner.HeavyModel)
	}
	if cfg.Runner.MaxRetries != 2 {
		t.Errorf("Runner.MaxRetries = %d, want 2", cfg.Runner.MaxRetries)
	}
	if cfg.Runner.StepTimeoutMinutes != 0 {
		t.Errorf("Runner.StepTimeoutMinutes = %d, want 0", cfg.Runner.StepTimeoutMinutes)
	}
	if !cfg.Runner.TrackCommits {
		t.Error("Runner.TrackCommits should be true by default")
	}

	// Verify state defaults
	if cfg.State.Backend != "file" {
		t.Errorf("State.Backend = %q, want %q", cfg.State.Backend, "file")
	}
	if cfg.State.Dir != ".phasekit" {
		t.Errorf("State.Dir = %q, want %q", cfg.State.Dir, ".phasekit")
	}

	// Verify logging defaults
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Compress {
		t.Error("Logging.Compress should be false by default")
	}

	if cfg.Output.Color != "auto" {
		t.Errorf("Output.Color = %q, want %q", cfg.Output.Color, "auto")
	}
}

func TestRunnerConfig_Durations(t *testing.T) {
	tests := []struct {
		ms, minutes  int
		retryDelay   time.Duration
		stepDeadline time.Duration
	}{
		{2000, 0, 2 * time.Second, 0},
		{0, 5, 0, 5 * time.Minute},
		{250, 90, 250 * time.Millisecond, 90 * time.Minute},
	}

	for _, tt := range tests {
		cfg := RunnerConfig{RetryDelayMs: tt.ms, StepTimeoutMinutes: tt.minutes}
		if got := cfg.RetryDelay(); got != tt.retryDelay {
			t.Errorf("RetryDelay() with %dms = %v, want %v", tt.ms, got, tt.retryDelay)
		}
		if got := cfg.StepTimeout(); got != tt.stepDeadline {
			t.Errorf("StepTimeout() with %dmin = %v, want %v", tt.minutes, got, tt.stepDeadline)
		}
	}
}

func TestStateConfig_ResolveDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"empty uses default", "", filepath.Join("/repo", ".phasekit")},
		{"relative", "state", filepath.Join("/repo", "state")},
		{"absolute", "/var/phasekit", "/var/phasekit"},
		{"home", "~/phasekit", filepath.Join(home, "phasekit")},
		{"bare home", "~", home},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := StateConfig{Dir: tt.dir}
			if got := cfg.ResolveDir("/repo"); got != tt.want {
				t.Errorf("ResolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/phasekit"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "phasekit")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/phasekit/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Scheduler.MaxParallel != 3 {
		t.Errorf("Get().Scheduler.MaxParallel = %d, want 3", cfg.Scheduler.MaxParallel)
	}
}

func TestLoad_OverridesAndValidation(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("scheduler.max_parallel", 8)
	viper.Set("runner.kind", "shell")
	viper.Set("logging.compress", true)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.MaxParallel != 8 || cfg.Runner.Kind != "shell" || !cfg.Logging.Compress {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.Runner.HeavyModel != "opus" {
		t.Errorf("unset keys should keep defaults, HeavyModel = %q", cfg.Runner.HeavyModel)
	}

	viper.Set("state.backend", "redis")
	_, err = Load()
	if err == nil {
		t.Fatal("Load() should reject an invalid backend")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok || !hasFieldError(verrs, "state.backend") {
		t.Errorf("Load() error = %v, want state.backend validation error", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "scheduler:\n  auto_threshold: 200\nrunner:\n  light_model: sonnet\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.AutoThreshold != 200 || cfg.Runner.LightModel != "sonnet" {
		t.Errorf("Load() = %+v", cfg)
	}
}
