package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hconv/utils"
)

// Header is the first row written by WriteCSV.
var Header = []string{
	"layer", "batch", "rows", "cols", "mode", "logN", "cores",
	"fwd_us", "enc_us", "dec_us", "muls", "adds", "level", "max_diff",
}

// LayerName matches the tag used by the layer itself.
func LayerName(c Case) string {
	return fmt.Sprintf("Conv2D_1_%d_%d_%d", c.OutChannels, c.Kernel, c.Kernel)
}

func toMicro(us float64) string {
	return strconv.FormatFloat(us, 'f', 3, 64)
}

// Record formats p as a CSV row. HE-only columns are empty for plaintext.
func Record(p Point) []string {
	mode, logN := "Plain", "-"
	enc, dec, muls, adds, level := "", "", "", "", ""
	if !p.Plain() {
		mode, logN = "HE", strconv.Itoa(p.LogN)
		enc, dec = toMicro(utils.DurationUS(p.Encrypt)), toMicro(utils.DurationUS(p.Decrypt))
		muls, adds, level = strconv.Itoa(p.Mul), strconv.Itoa(p.Add), strconv.Itoa(p.Level)
	}
	return []string{
		LayerName(p.Case),
		strconv.Itoa(p.Batch), strconv.Itoa(p.Rows), strconv.Itoa(p.Cols),
		mode, logN, strconv.Itoa(p.Cores),
		toMicro(utils.DurationUS(p.Fwd)), enc, dec, muls, adds, level,
		strconv.FormatFloat(p.MaxDiff, 'g', 4, 64),
	}
}

// WriteCSV writes the header and one row per point.
func WriteCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write(Record(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseInts parses a comma-separated list of integers
func ParseInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
