package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for the phases of a run
type TimingStats struct {
	TotalTime      time.Duration
	HEInitTime     time.Duration
	ModelInitTime  time.Duration
	EncryptionTime time.Duration
	ForwardTime    time.Duration
	DecryptionTime time.Duration
	ReferenceTime  time.Duration
	BackwardTime   time.Duration
	UpdateTime     time.Duration

	// per-batch forward latencies
	Forwards []time.Duration
}

// AddForward records one forward evaluation.
func (s *TimingStats) AddForward(d time.Duration) {
	s.ForwardTime += d
	s.Forwards = append(s.Forwards, d)
}

// ForwardSummary returns the mean and worst forward latency in microseconds.
func (s *TimingStats) ForwardSummary() (mean, max float64) {
	if len(s.Forwards) == 0 {
		return 0, 0
	}
	us := make([]float64, len(s.Forwards))
	for i, d := range s.Forwards {
		us[i] = DurationUS(d)
	}
	return floats.Sum(us) / float64(len(us)), floats.Max(us)
}

func pct(part, total time.Duration) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats) {
	if !Verbose {
		return
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintln(Output, "\nBreakdown by phase:")
	fmt.Fprintf(Output, "  HE initialization: %v (%.1f%%)\n", stats.HEInitTime, pct(stats.HEInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Model initialization: %v (%.1f%%)\n", stats.ModelInitTime, pct(stats.ModelInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Encryption: %v (%.1f%%)\n", stats.EncryptionTime, pct(stats.EncryptionTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Forward pass: %v (%.1f%%)\n", stats.ForwardTime, pct(stats.ForwardTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Decryption: %v (%.1f%%)\n", stats.DecryptionTime, pct(stats.DecryptionTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Reference: %v (%.1f%%)\n", stats.ReferenceTime, pct(stats.ReferenceTime, stats.TotalTime))
	if stats.BackwardTime > 0 || stats.UpdateTime > 0 {
		fmt.Fprintf(Output, "  Backward pass: %v (%.1f%%)\n", stats.BackwardTime, pct(stats.BackwardTime, stats.TotalTime))
		fmt.Fprintf(Output, "  Weight updates: %v (%.1f%%)\n", stats.UpdateTime, pct(stats.UpdateTime, stats.TotalTime))
	}
	if n := len(stats.Forwards); n > 0 {
		mean, max := stats.ForwardSummary()
		fmt.Fprintf(Output, "\nForward passes: %d, mean %.1fµs, max %.1fµs\n", n, mean, max)
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
