package kv

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cli")

	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Benchmarks path operations on the instance",
		Long:    "Runs parallel benchmarks of set, get, has and remove on paths below a \"__perf\" object of the instance. The object is removed afterward.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfPathPrefix       = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfPathSpread       = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU used for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "paths"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different paths to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfPathSpread = max(viper.GetInt("paths"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfCase is one benchmark. prepare runs once before the timer starts, op
// runs for every iteration with a running counter.
type perfCase struct {
	name    string
	prepare func(s *storage.Storage)
	op      func(s *storage.Storage, i int) error
}

func perfCases() []perfCase {
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	fill := func(s *storage.Storage) {
		for i := 0; i < perfPathSpread; i++ {
			if err := s.Set(perfPath(i), "test"); err != nil {
				log.Warningf("(perf) - error preparing path: %v", err)
			}
		}
	}

	return []perfCase{
		{name: "set", op: func(s *storage.Storage, i int) error {
			return s.Set(perfPath(i), "test")
		}},
		{name: "set-large", op: func(s *storage.Storage, i int) error {
			return s.Set(perfPath(i), largeValue)
		}},
		{name: "get", prepare: fill, op: func(s *storage.Storage, i int) error {
			_, err := s.Get(perfPath(i))
			return err
		}},
		{name: "has", prepare: fill, op: func(s *storage.Storage, i int) error {
			_, err := s.Has(perfPath(i))
			return err
		}},
		{name: "has-not", op: func(s *storage.Storage, i int) error {
			_, err := s.Has(fmt.Sprintf("%s.has-not-%d", perfPathPrefix, i%perfPathSpread))
			return err
		}},
		{name: "remove", prepare: fill, op: func(s *storage.Storage, i int) error {
			return s.Remove(perfPath(i))
		}},
		{name: "mixed", prepare: fill, op: func(s *storage.Storage, i int) error {
			var err error
			switch i % 4 {
			case 0:
				err = s.Set(perfPath(i), "test")
			case 1:
				_, err = s.Get(perfPath(i))
			case 2:
				err = s.Remove(perfPath(i))
			case 3:
				_, err = s.Has(perfPath(i))
			}
			return err
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for sKV")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(instance.Config().String())
	fmt.Printf("\nEffective type: %s\n", instance.Type())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, c := range perfCases() {
		if shouldSkip(c.name) {
			results[c.name] = testing.BenchmarkResult{}
			printResult(c.name, results[c.name])
			continue
		}

		c := c
		result := testing.Benchmark(func(b *testing.B) {
			b.Cleanup(func() {
				if err := instance.Remove(perfPathPrefix); err != nil {
					log.Warningf("(%s) - error cleaning up: %v", c.name, err)
				}
			})
			if c.prepare != nil {
				c.prepare(instance)
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := c.op(instance, counter); err != nil {
						log.Warningf("(%s) - error: %v", c.name, err)
					}
					counter++
				}
			})
		})

		results[c.name] = result
		printResult(c.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// perfPath returns the i-th test path (with wraparound)
func perfPath(i int) string {
	return fmt.Sprintf("%s.p%d", perfPathPrefix, i%perfPathSpread)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Key", "Type", "EffectiveType", "Threads", "LargeValueSizeKB", "Paths",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	conf := instance.Config()
	for test, result := range results {
		nsPerOp, opsPerSec, skipped := 0.0, 0.0, "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			conf.Key,
			string(conf.Type),
			string(instance.Type()),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfPathSpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", test, err)
		}
	}

	return nil
}
