// Package cmd implements the workspace CLI: a bench and demo harness for
// the adaptive worker-pool engine.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DeHby/workspace"
	"github.com/DeHby/workspace/internal/branch"
	"github.com/DeHby/workspace/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Adaptive worker-pool engine bench and demo harness",
	Long: `Workspace is an embeddable adaptive worker-pool engine. This binary
exercises the library: the bench command measures throughput under a
configurable pool, and the demo command walks through urgent bypass,
ordered sequences, and live limit reloading.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/workspace/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	config.Init(viper.GetString("config"))
}

// engineOptions lowers a validated config into construction options.
func engineOptions(cfg *config.Config) ([]workspace.Option, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	strategy, err := branch.ParseWaitStrategy(cfg.Branch.WaitStrategy)
	if err != nil {
		return nil, err
	}

	opts := []workspace.Option{
		workspace.WithWaitStrategy(strategy),
		workspace.WithIdleTimeout(cfg.Branch.IdleTimeout()),
		workspace.WithTickInterval(cfg.Branch.TickInterval()),
	}
	if !cfg.Branch.CPUMultiple.Enabled {
		opts = append(opts, workspace.WithWorkerLimits(cfg.Branch.MinWorkers, cfg.Branch.MaxWorkers))
	}
	if cfg.Logging.Dir != "" {
		opts = append(opts, workspace.WithLogDir(cfg.Logging.Dir, cfg.Logging.Level))
	}
	return opts, nil
}

// newEngine constructs a DynBranch from the current config.
func newEngine(cfg *config.Config) (*workspace.DynBranch, error) {
	opts, err := engineOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Branch.CPUMultiple.Enabled {
		return workspace.NewCPUMultiple(cfg.Branch.CPUMultiple.Min, cfg.Branch.CPUMultiple.Max, opts...)
	}
	return workspace.New(opts...)
}
