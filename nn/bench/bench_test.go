package bench

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"hconv/core/ckkswrapper"
	"hconv/nn/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInts(t *testing.T) {
	got, err := ParseInts(" 12, 13,,14 ")
	require.NoError(t, err)
	assert.Equal(t, []int{12, 13, 14}, got)

	got, err = ParseInts("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseInts("1,x")
	assert.Error(t, err)
}

func TestRunPointPlain(t *testing.T) {
	c := Case{Kernel: 2, OutChannels: 3, Batch: 2, Rows: 4, Cols: 5, Bias: true}
	p, err := RunPoint(c, 2, 1)
	require.NoError(t, err)
	assert.True(t, p.Plain())
	assert.LessOrEqual(t, p.MaxDiff, reference.Tolerance)
	assert.Zero(t, p.Mul)

	_, err = RunPoint(c, 0, 0)
	assert.Error(t, err)
	_, err = RunPoint(Case{Kernel: 5, OutChannels: 1, Batch: 1, Rows: 3, Cols: 3}, 1, 0)
	assert.Error(t, err)
}

func TestRunPointHE(t *testing.T) {
	c := Case{Kernel: 2, OutChannels: 2, Batch: 4, Rows: 3, Cols: 3, LogN: 12, Cores: 2}
	p, err := RunPoint(c, 2, 1)
	require.NoError(t, err)
	assert.False(t, p.Plain())
	assert.LessOrEqual(t, p.MaxDiff, reference.HETolerance)
	// four windows, each multiplying 2 channels of a 2x2 kernel
	assert.Equal(t, 4*2*4, p.Mul)
	assert.Equal(t, ckkswrapper.NewHeContextWithLogN(12).Params.MaxLevel()-1, p.Level)
	assert.Positive(t, p.Encrypt)
}

func TestWriteCSV(t *testing.T) {
	points := []Point{
		{Case: Case{Kernel: 3, OutChannels: 2, Batch: 1, Rows: 5, Cols: 5, Cores: 1}, Fwd: 1500 * time.Nanosecond},
		{Case: Case{Kernel: 3, OutChannels: 2, Batch: 1, Rows: 5, Cols: 5, LogN: 13, Cores: 4}, Fwd: time.Millisecond, Mul: 162, Level: 2},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, points))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "Conv2D_1_2_3_3", rows[1][0])
	assert.Equal(t, "Plain", rows[1][4])
	assert.Equal(t, "-", rows[1][5])
	assert.Equal(t, "1.500", rows[1][7])
	assert.Equal(t, "", rows[1][10])
	assert.Equal(t, "HE", rows[2][4])
	assert.Equal(t, "13", rows[2][5])
	assert.Equal(t, "162", rows[2][10])
	assert.Equal(t, "2", rows[2][12])
}
