package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DeHby/workspace"
	"github.com/DeHby/workspace/internal/config"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through urgent bypass, sequences, and futures",
	Long: `Run a short walkthrough of the engine's submission forms: normal
tasks, an urgent task jumping the backlog, an ordered sequence, and a
value-bearing future.

With --watch, the command then keeps running and re-applies
branch.min_workers / branch.max_workers whenever the config file
changes, until interrupted.`,
	RunE: runDemo,
}

var demoWatch bool

func init() {
	demoCmd.Flags().BoolVar(&demoWatch, "watch", false, "keep running and reload worker limits on config change")
	rootCmd.AddCommand(demoCmd)
}

var demoStepStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

func runDemo(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	engine, err := newEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	// Urgent bypass: queue slow normals behind a busy pool, then jump them.
	fmt.Println(demoStepStyle.Render("1. urgent bypass"))
	var mu sync.Mutex
	var executed []string
	record := func(name string) func() {
		return func() {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			executed = append(executed, name)
			mu.Unlock()
		}
	}
	for i := 1; i <= 5; i++ {
		engine.Submit(record(fmt.Sprintf("normal-%d", i)))
	}
	engine.SubmitUrgent(record("urgent"))
	engine.WaitTasks(time.Minute)
	fmt.Printf("   execution order: %v\n", executed)

	// Ordered sequence on one worker.
	fmt.Println(demoStepStyle.Render("2. ordered sequence"))
	var word string
	engine.SubmitSequence(
		func() { word += "a" },
		func() { word += "b" },
		func() { word += "c" },
	)
	engine.WaitTasks(time.Minute)
	fmt.Printf("   sequence result: %q\n", word)

	// Value-bearing future.
	fmt.Println(demoStepStyle.Render("3. future"))
	f := workspace.Async(engine, func() (int, error) {
		time.Sleep(5 * time.Millisecond)
		return 42, nil
	})
	val, err := f.Get(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("   future resolved: %d (workers: %d, queued: %d)\n", val, engine.NumWorkers(), engine.NumTasks())

	if !demoWatch {
		return nil
	}

	// Watch mode: apply limit changes from the config file until Ctrl-C.
	fmt.Println(demoStepStyle.Render("4. watching config for worker-limit changes (Ctrl-C to exit)"))
	viper.OnConfigChange(func(e fsnotify.Event) {
		updated := config.Get()
		if errs := updated.Validate(); len(errs) > 0 {
			fmt.Printf("   ignoring %s: %v\n", e.Name, config.ValidationErrors(errs))
			return
		}
		if err := engine.SetWorkerLimits(
			updated.Branch.MinWorkers,
			updated.Branch.MaxWorkers,
			updated.Branch.IdleTimeout(),
		); err != nil {
			fmt.Printf("   ignoring %s: %v\n", e.Name, err)
			return
		}
		fmt.Printf("   applied limits [%d, %d] from %s\n",
			updated.Branch.MinWorkers, updated.Branch.MaxWorkers, e.Name)
	})
	viper.WatchConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-ctx.Done()
	fmt.Println()
	return nil
}
