package cmd

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/DeHby/workspace/internal/config"
)

func TestEngineOptionsFromDefaults(t *testing.T) {
	cfg := config.Default()

	opts, err := engineOptions(cfg)
	if err != nil {
		t.Fatalf("engineOptions: %v", err)
	}
	if len(opts) == 0 {
		t.Fatal("engineOptions returned no options")
	}
}

func TestEngineOptionsRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Branch.MaxWorkers = 0

	if _, err := engineOptions(cfg); err == nil {
		t.Error("engineOptions accepted an invalid config")
	}
}

func TestNewEngineRunsTasks(t *testing.T) {
	cfg := config.Default()
	cfg.Branch.MaxWorkers = 2

	engine, err := newEngine(cfg)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer engine.Close()

	done := make(chan struct{})
	engine.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted task never ran")
	}
}

func TestNewEngineCPUMultipleMode(t *testing.T) {
	cfg := config.Default()
	cfg.Branch.CPUMultiple.Enabled = true
	cfg.Branch.CPUMultiple.Min = 0.5
	cfg.Branch.CPUMultiple.Max = 1

	engine, err := newEngine(cfg)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	engine.Close()
}

func TestRootCommandHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"bench", "demo"} {
		if !names[want] {
			t.Errorf("root command missing %q subcommand", want)
		}
	}
}

func TestInitConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	initConfig()

	if got := viper.GetInt("branch.min_workers"); got != 1 {
		t.Errorf("branch.min_workers = %d, want 1", got)
	}
	if got := viper.GetString("branch.wait_strategy"); got != "blocking" {
		t.Errorf("branch.wait_strategy = %q, want \"blocking\"", got)
	}
}
