// Package main implements memdemo, a small CLI exercising the memory
// subsystem end to end: create a persistent system, write tagged cells,
// run cleanup, and print a metrics snapshot.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/ianlintner/agentic-memory/internal/logging"
	"github.com/ianlintner/agentic-memory/internal/memory"
)

var (
	verbose   bool
	baseDir   string
	tag       string
	maxAgeSec int
)

func bytesCodec() memory.Codec[string] {
	return memory.Codec[string]{
		Serialize:   func(s string) ([]byte, error) { return []byte(s), nil },
		Deserialize: func(b []byte) (string, error) { return string(b), nil },
	}
}

var rootCmd = &cobra.Command{
	Use:   "memdemo",
	Short: "memdemo exercises the persistent memory subsystem",
	Long: `memdemo is a demonstration CLI over the memory subsystem's
Persistent System, cleanup strategies, and Monitor.

It is not part of the subsystem's core contract; it exists to show the
pieces wired together the way a calling application would.`,
}

var seedCmd = &cobra.Command{
	Use:   "seed [values...]",
	Short: "create a tagged, durable cell for each value",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, sync, err := newLogger()
		if err != nil {
			return err
		}
		defer sync()

		sys, err := memory.NewPersistentSystem(baseDir, clock.New(), logger)
		if err != nil {
			return fmt.Errorf("open persistent system: %w", err)
		}

		for _, v := range args {
			c, err := memory.CreatePersistentCellWithTags(sys, v, []string{tag}, bytesCodec())
			if err != nil {
				return fmt.Errorf("create cell for %q: %w", v, err)
			}
			fmt.Printf("created %s = %q tag=%s\n", c.ID(), v, tag)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "run a time-based cleanup pass over the persistent system",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, sync, err := newLogger()
		if err != nil {
			return err
		}
		defer sync()

		sys, err := memory.NewPersistentSystem(baseDir, clock.New(), logger)
		if err != nil {
			return fmt.Errorf("open persistent system: %w", err)
		}

		n := sys.RunCleanupWith(memory.TimeBasedAccess(time.Duration(maxAgeSec) * time.Second))
		fmt.Printf("emptied %d cell(s)\n", n)
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "print a Monitor snapshot over the persistent system",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, sync, err := newLogger()
		if err != nil {
			return err
		}
		defer sync()

		sys, err := memory.NewPersistentSystem(baseDir, clock.New(), logger)
		if err != nil {
			return fmt.Errorf("open persistent system: %w", err)
		}

		mon := memory.NewMonitor(clock.New(), logger)
		mon.RegisterMemorySystem(sys)
		snap := mon.GetMetrics()

		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func newLogger() (logging.Sink, func() error, error) {
	logger, sync, err := logging.NewProduction(verbose)
	if err != nil {
		return nil, nil, err
	}
	return logger, sync, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&baseDir, "dir", "d", ".memdemo", "persistent system base directory")

	seedCmd.Flags().StringVar(&tag, "tag", "demo", "tag applied to every seeded cell")
	cleanupCmd.Flags().IntVar(&maxAgeSec, "max-age-seconds", 60, "time_based_access max age")

	rootCmd.AddCommand(seedCmd, cleanupCmd, metricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
