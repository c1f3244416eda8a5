// Command rtosbench stresses the kernel primitives under contention and
// prints a comparison table.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/rtos/rtos"
)

var (
	bold  = color.New(color.Bold)
	red   = color.New(color.FgRed)
	green = color.New(color.FgGreen)
)

// Runner runs one scenario against a kernel it owns.
type Runner struct {
	scenario Scenario
	ops      int
	workers  int
}

func newRunner(s Scenario, ops, workers int) *Runner {
	return &Runner{scenario: s, ops: ops, workers: workers}
}

// Run boots a kernel, runs the scenario and shuts the kernel down.
func (r *Runner) Run(bar *progressbar.ProgressBar) (Result, []rtos.TaskStats, error) {
	if bar != nil {
		bar.Describe(fmt.Sprintf("Running %s", r.scenario.Name))
	}

	k := rtos.New()
	res, err := r.scenario.Run(k, r.ops, r.workers)
	stats := k.TaskStats()
	if shutdownErr := k.Shutdown(5 * time.Second); err == nil {
		err = shutdownErr
	}
	res.Name = r.scenario.Name

	if bar != nil {
		_ = bar.Add(1)
	}
	return res, stats, err
}

// calculateStats keeps the median run of a scenario.
func calculateStats(results []Result) Result {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Elapsed < results[j].Elapsed
	})
	return results[len(results)/2]
}

func printConfiguration(ops, workers, iterations int) {
	_, _ = bold.Println("⚙️  Configuration:")
	fmt.Printf("  Operations:       %s per scenario\n", formatNumber(ops))
	fmt.Printf("  Workers:          %d (using %d CPU cores)\n", workers, runtime.NumCPU())
	fmt.Printf("  Iterations:       %d (median reported)\n", iterations)
	fmt.Printf("  Tick rate:        %d Hz\n", rtos.TickRate)
	fmt.Println()
}

func printResults(results []Result) {
	fmt.Println()
	_, _ = bold.Println("📊 PRIMITIVE THROUGHPUT")
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Scenario", "Ops", "Time", "ops/sec", "Notes")
	for _, r := range results {
		_ = table.Append(
			r.Name,
			formatNumber(r.Ops),
			r.Elapsed.Round(time.Microsecond).String(),
			fmt.Sprintf("%.0f", r.OpsPerSec()),
			r.Note,
		)
	}
	_ = table.Render()
}

func printTaskStats(name string, stats []rtos.TaskStats) {
	fmt.Println()
	_, _ = bold.Printf("🧵 Tasks after %s\n", name)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Task", "Priority", "Core", "CPU", "State", "Stack", "Used", "Free")
	for _, s := range stats {
		_ = table.Append(
			s.Name,
			strconv.Itoa(s.Priority),
			s.Core.String(),
			cpuLabel(s.CPU),
			s.State.String(),
			strconv.Itoa(s.StackSize),
			strconv.Itoa(s.MemUsage),
			strconv.Itoa(s.MemFree),
		)
	}
	_ = table.Render()
}

func formatNumber(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.Itoa(n)
	}
}

func scenariosToRun(isolated string) []Scenario {
	if isolated == "" {
		return allScenarios
	}
	i := slices.IndexFunc(allScenarios, func(s Scenario) bool { return s.Name == isolated })
	if i < 0 {
		_, _ = red.Printf("Error: Unknown scenario '%s'\n", isolated)
		for _, s := range allScenarios {
			fmt.Println("  -", s.Name)
		}
		os.Exit(1)
	}
	return allScenarios[i : i+1]
}

func makeProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Running scenarios"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// cpuLabel renders the bound OS core, "-" for an unpinned Task.
func cpuLabel(cpu int) string {
	if cpu < 0 {
		return "-"
	}
	return strconv.Itoa(cpu)
}

func main() {
	enableWindowsANSI()

	opsFlag := flag.Int("ops", 100_000, "Operations per scenario")
	workersFlag := flag.Int("workers", 4, "Concurrent owners, producers or group members")
	scenarioFlag := flag.String("scenario", "", "Run a single scenario by name. If empty, runs all scenarios")
	iterationsFlag := flag.Int("iterations", 1, "Runs per scenario; the median is reported")
	statsFlag := flag.Bool("stats", false, "Print the task table of each scenario's kernel")
	cpuProfileFlag := flag.String("cpuprofile", "", "Write CPU profile to file")
	flag.Parse()

	if *cpuProfileFlag != "" {
		f, err := os.Create(*cpuProfileFlag)
		if err != nil {
			_, _ = red.Printf("Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := f.Close(); err != nil {
				_, _ = red.Printf("Error closing profile file: %v\n", err)
			}
		}()

		if err := pprof.StartCPUProfile(f); err != nil {
			_, _ = red.Printf("Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	workers := max(*workersFlag, 1)
	iterations := max(*iterationsFlag, 1)
	printConfiguration(*opsFlag, workers, iterations)

	scenarios := scenariosToRun(*scenarioFlag)
	bar := makeProgressBar(len(scenarios) * iterations)

	results := make([]Result, 0, len(scenarios))
	failed := false
	for _, s := range scenarios {
		runs := make([]Result, 0, iterations)
		var stats []rtos.TaskStats
		for range iterations {
			res, st, err := newRunner(s, *opsFlag, workers).Run(bar)
			if err != nil {
				_ = bar.Clear()
				_, _ = red.Printf("✗ %s: %v\n", s.Name, err)
				failed = true
				break
			}
			runs = append(runs, res)
			stats = st
			runtime.GC()
		}
		if len(runs) == 0 {
			continue
		}
		results = append(results, calculateStats(runs))
		if *statsFlag {
			_ = bar.Clear()
			printTaskStats(s.Name, stats)
		}
	}
	_ = bar.Finish()

	if len(results) > 0 {
		printResults(results)
	}
	if failed {
		os.Exit(1)
	}
	_, _ = green.Println("\n✓ All scenarios completed")
}
