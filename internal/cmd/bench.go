package cmd

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/DeHby/workspace/internal/config"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Burst-submit tasks and report pool behavior",
	Long: `Submit a burst of timed tasks to a supervised pool and report wall
time, throughput, and how far the supervisor scaled the pool.`,
	RunE: runBench,
}

var (
	benchTasks    int           // number of tasks to submit
	benchTaskTime time.Duration // simulated work per task
	benchUrgent   int           // urgent tasks mixed into the burst
)

func init() {
	benchCmd.Flags().IntVar(&benchTasks, "tasks", 1000, "number of tasks to submit")
	benchCmd.Flags().DurationVar(&benchTaskTime, "task-time", time.Millisecond, "simulated work per task")
	benchCmd.Flags().IntVar(&benchUrgent, "urgent", 0, "urgent tasks mixed into the burst")
	rootCmd.AddCommand(benchCmd)
}

var (
	benchTitleStyle = lipgloss.NewStyle().Bold(true)
	benchRuleStyle  = lipgloss.NewStyle().Faint(true)
	benchValueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

func runBench(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	engine, err := newEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	// Sample the worker count on every supervisor tick.
	var peakWorkers atomic.Int64
	engine.SetTickCallback(func() {
		if n := int64(engine.NumWorkers()); n > peakWorkers.Load() {
			peakWorkers.Store(n)
		}
	})

	var completed atomic.Int64
	work := func() {
		if benchTaskTime > 0 {
			time.Sleep(benchTaskTime)
		}
		completed.Add(1)
	}

	urgentEvery := 0
	if benchUrgent > 0 {
		urgentEvery = benchTasks / benchUrgent
		if urgentEvery < 1 {
			urgentEvery = 1
		}
	}

	start := time.Now()
	for i := 0; i < benchTasks; i++ {
		if urgentEvery > 0 && i%urgentEvery == 0 && i/urgentEvery < benchUrgent {
			if err := engine.SubmitUrgent(work); err != nil {
				return err
			}
			continue
		}
		if err := engine.Submit(work); err != nil {
			return err
		}
	}

	if !engine.WaitTasks(10 * time.Minute) {
		return fmt.Errorf("bench did not quiesce")
	}
	elapsed := time.Since(start)

	if n := int64(engine.NumWorkers()); n > peakWorkers.Load() {
		peakWorkers.Store(n)
	}

	printBenchReport(cfg, elapsed, completed.Load(), peakWorkers.Load(), engine.NumWorkers())
	return nil
}

func printBenchReport(cfg *config.Config, elapsed time.Duration, completed, peak int64, final int) {
	rule := benchRuleStyle.Render("──────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(benchTitleStyle.Render("BENCH SUMMARY"))
	fmt.Println(rule)
	fmt.Printf("Strategy:        %s\n", cfg.Branch.WaitStrategy)
	fmt.Printf("Worker limits:   [%d, %d]\n", cfg.Branch.MinWorkers, cfg.Branch.MaxWorkers)
	fmt.Printf("Tasks completed: %s\n", benchValueStyle.Render(fmt.Sprintf("%d", completed)))
	fmt.Printf("Wall time:       %s\n", benchValueStyle.Render(elapsed.Round(time.Millisecond).String()))
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("Throughput:      %s tasks/s\n", benchValueStyle.Render(fmt.Sprintf("%.0f", float64(completed)/secs)))
	}
	fmt.Println(rule)
	fmt.Printf("Peak workers:    %d\n", peak)
	fmt.Printf("Final workers:   %d\n", final)
	fmt.Println()
}
