package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluation modes accepted by the command line tools.
const (
	ModePlain = "plain"
	ModeHE    = "he"
)

// Config holds the settings shared by the conv tools.
type Config struct {
	OutChannels int
	KernelSize  int
	Bias        bool
	Shape       []int // batch, rows, cols
	Seed        int64 // negative: seed from the clock
	Mode        string
	LogN        int
	WeightsPath string
}

// ParseShape parses a "B R C" string into the input geometry.
func ParseShape(s string) ([]int, error) {
	parts := strings.Fields(s)
	shape := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		shape[i] = n
	}
	return shape, nil
}

// ValidateConfig validates the tool configuration
func ValidateConfig(config *Config) error {
	if len(config.Shape) != 3 {
		return fmt.Errorf("shape must be \"batch rows cols\", got %v", config.Shape)
	}
	for _, d := range config.Shape {
		if d <= 0 {
			return fmt.Errorf("shape dimensions must be positive, got %v", config.Shape)
		}
	}

	if config.OutChannels <= 0 {
		return fmt.Errorf("out channels must be positive")
	}

	if config.KernelSize <= 0 {
		return fmt.Errorf("kernel size must be positive")
	}

	if config.KernelSize > config.Shape[1] || config.KernelSize > config.Shape[2] {
		return fmt.Errorf("kernel size %d larger than %dx%d input", config.KernelSize, config.Shape[1], config.Shape[2])
	}

	if config.Mode != ModePlain && config.Mode != ModeHE {
		return fmt.Errorf("mode must be %q or %q", ModePlain, ModeHE)
	}

	if config.Mode == ModeHE {
		if config.LogN < 10 || config.LogN > 16 {
			return fmt.Errorf("logN must be in [10, 16], got %d", config.LogN)
		}
		if slots := 1 << (config.LogN - 1); config.Shape[0] > slots {
			return fmt.Errorf("batch %d exceeds %d slots", config.Shape[0], slots)
		}
	}

	return nil
}

// Seeded reports whether a fixed seed was requested, and returns it.
func (c *Config) Seeded() (uint64, bool) {
	if c.Seed < 0 {
		return 0, false
	}
	return uint64(c.Seed), true
}
