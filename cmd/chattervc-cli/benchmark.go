package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

const (
	benchmarkText   = "This is a test sentence for benchmarking."
	benchmarkWarmUp = "Warm up"
)

// benchStats summarises the latencies of the successful benchmark runs.
type benchStats struct {
	Completed int
	Failed    int
	Total     time.Duration
	Average   time.Duration
	Median    time.Duration
	Min       time.Duration
	Max       time.Duration
}

func summarize(times []time.Duration, failed int) benchStats {
	s := benchStats{Completed: len(times), Failed: failed}
	if len(times) == 0 {
		return s
	}
	sorted := slices.Clone(times)
	slices.Sort(sorted)
	for _, t := range sorted {
		s.Total += t
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Average = s.Total / time.Duration(len(sorted))
	if mid := len(sorted) / 2; len(sorted)%2 == 1 {
		s.Median = sorted[mid]
	} else {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return s
}

func newBenchmarkCmd(g *globalOptions) *cobra.Command {
	var (
		flags      speechFlags
		iterations int
		text       string
	)
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure synthesis latency",
		Long: `Sends one warm-up request followed by N timed requests and reports
latency statistics for the ones that succeeded.

Examples:
  chattervc-cli benchmark
  chattervc-cli benchmark -n 20 --voice alice --model chatterbox`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if iterations < 1 {
				return fmt.Errorf("iterations must be at least 1, got %d", iterations)
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "benchmarking %s with voice %s, model %s\n", c.BaseURL(), flags.voice, flags.model)

			// The warm-up pays for lazy engine loading; its outcome does not count.
			if _, err := c.Speech(ctx, flags.request(cmd, benchmarkWarmUp)); err != nil {
				fmt.Fprintf(w, "warm-up failed: %v\n", err)
			}

			req := flags.request(cmd, text)
			times := make([]time.Duration, 0, iterations)
			failed := 0
			for i := range iterations {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				if _, err := c.Speech(ctx, req); err != nil {
					failed++
					fmt.Fprintf(w, "run %d failed: %v\n", i+1, err)
					continue
				}
				times = append(times, time.Since(start))
			}

			s := summarize(times, failed)
			if s.Completed == 0 {
				return fmt.Errorf("all %d runs failed", iterations)
			}
			fmt.Fprintf(w, "completed  %d/%d\n", s.Completed, iterations)
			fmt.Fprintf(w, "average    %.3fs\n", s.Average.Seconds())
			fmt.Fprintf(w, "median     %.3fs\n", s.Median.Seconds())
			fmt.Fprintf(w, "min        %.3fs\n", s.Min.Seconds())
			fmt.Fprintf(w, "max        %.3fs\n", s.Max.Seconds())
			fmt.Fprintf(w, "total      %.3fs\n", s.Total.Seconds())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 5, "number of timed requests")
	cmd.Flags().StringVar(&text, "text", benchmarkText, "text to synthesise")
	return cmd
}
