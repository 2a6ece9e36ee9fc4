package chapters

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

func TestParseTime_Numeric(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"int", 390, 390},
		{"int64", int64(3600), 3600},
		{"uint16", uint16(42), 42},
		{"float64", 390.5, 390.5},
		{"float32", float32(0.25), 0.25},
		{"zero", 0, 0},
		{"json number", json.Number("605.5"), 605.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseTime_Strings(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"390", 390},
		{"390.5", 390.5},
		{"6:30", 390},
		{"6:30.5", 390.5},
		{"0:0", 0},
		{"10:05.5", 605.5},
		{"90:00", 5400},
		{"  6:30  ", 390},
		{"\t42\n", 42},
		{"1.5:30", 120},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseTime_StringAndNumberAgree(t *testing.T) {
	fromString, err := ParseTime("390")
	require.NoError(t, err)
	fromNumber, err := ParseTime(390)
	require.NoError(t, err)

	assert.Equal(t, fromNumber, fromString)
	assert.Equal(t, 390.0, fromString)
}

func TestParseTime_Invalid(t *testing.T) {
	inputs := []any{
		"abc",
		"1:2:3",
		":30",
		"6:",
		"",
		"   ",
		"6 :30",
		"6: 30",
		"six:thirty",
		"1,5",
		"NaN",
		"Inf",
		math.Inf(1),
		math.NaN(),
		nil,
		true,
		[]int{1},
		map[string]any{"minutes": 6},
		"1e16",
		"-1e16",
		1e300,
		-1e300,
		int64(math.MaxInt64),
		uint64(math.MaxUint64),
		json.Number("1e20"),
		"160000000000000:00",
		"0x1p4",
		"0X10",
		"1_000",
		"1:0x1p4",
		"1_0:30",
	}

	for _, input := range inputs {
		_, err := ParseTime(input)
		require.Error(t, err, "input %#v", input)
		assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidTimeFormat), "input %#v: %v", input, err)
	}
}

func TestParseTime_LargeValuesStayInMillisRange(t *testing.T) {
	got, err := ParseTime("1e15")
	require.NoError(t, err)
	assert.Equal(t, int64(1e18), Millis(got))

	meta := BuildMetadata([]Chapter{{Title: "Late", Start: got}})
	assert.Contains(t, meta, "START=1000000000000000000\n")
}

func TestParseTime_NegativeNumbersPassThrough(t *testing.T) {
	// Range checks belong to Policy, not the parser.
	got, err := ParseTime("-5")
	require.NoError(t, err)
	assert.Equal(t, -5.0, got)
}

func TestParseTime_ErrorMentionsInput(t *testing.T) {
	_, err := ParseTime("1:2:3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"1:2:3"`)
	assert.Contains(t, err.Error(), "MM:SS")
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00.000"},
		{390, "6:30.000"},
		{605.5, "10:05.500"},
		{3600, "1:00:00.000"},
		{3725.25, "1:02:05.250"},
		{-1.5, "-0:01.500"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatClock(tt.seconds))
		})
	}
}

func TestMillis_Rounds(t *testing.T) {
	assert.Equal(t, int64(60000), Millis(60))
	assert.Equal(t, int64(1235), Millis(1.2346))
	assert.Equal(t, int64(100), Millis(0.1))
	assert.Equal(t, int64(290), Millis(0.29))
}
