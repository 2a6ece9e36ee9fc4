package chapters

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

const timeFormatHint = `use seconds (e.g. 390) or MM:SS (e.g. "6:30")`

// maxSeconds keeps Millis within int64.
const maxSeconds = float64(math.MaxInt64 / 1000)

// ParseTime converts a start time to seconds. Accepted shapes, in order:
// a Go numeric value, a string holding a float ("390.5"), or a two-part
// "minutes:seconds" string whose parts are both floats ("6:30.5").
// Hours are not supported.
func ParseTime(input any) (float64, error) {
	switch v := input.(type) {
	case nil:
		return 0, domainerrors.InvalidTimeFormatf("missing start time: %s", timeFormatHint)
	case float64:
		return finite(v, input)
	case float32:
		return finite(float64(v), input)
	case int:
		return finite(float64(v), input)
	case int8:
		return finite(float64(v), input)
	case int16:
		return finite(float64(v), input)
	case int32:
		return finite(float64(v), input)
	case int64:
		return finite(float64(v), input)
	case uint:
		return finite(float64(v), input)
	case uint8:
		return finite(float64(v), input)
	case uint16:
		return finite(float64(v), input)
	case uint32:
		return finite(float64(v), input)
	case uint64:
		return finite(float64(v), input)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, invalidTime(input)
		}
		return finite(f, input)
	case string:
		return ParseTimeString(v)
	default:
		return 0, invalidTime(input)
	}
}

// ParseTimeString parses the textual forms accepted by ParseTime.
// Surrounding whitespace is ignored; whitespace inside a part is not.
func ParseTimeString(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)

	if f, err := parseDecimal(trimmed); err == nil {
		return finite(f, s)
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 {
		return 0, invalidTime(s)
	}

	minutes, err := parseDecimal(parts[0])
	if err != nil {
		return 0, invalidTime(s)
	}
	seconds, err := parseDecimal(parts[1])
	if err != nil {
		return 0, invalidTime(s)
	}

	return finite(minutes*60+seconds, s)
}

// FormatClock renders seconds as M:SS.mmm, or H:MM:SS.mmm past an hour.
func FormatClock(seconds float64) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	ms := Millis(seconds)
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, h, m, s, frac)
	}
	return fmt.Sprintf("%s%d:%02d.%03d", sign, m, s, frac)
}

// Millis converts seconds to whole milliseconds, rounding half away from zero.
func Millis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

// parseDecimal is strconv.ParseFloat restricted to decimal notation: hex
// floats ("0x1p4") and digit separators ("1_000") are refused.
func parseDecimal(s string) (float64, error) {
	if strings.ContainsAny(s, "_xX") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

// finite rejects NaN, infinities and values too large to express in
// milliseconds.
func finite(f float64, raw any) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= maxSeconds {
		return 0, invalidTime(raw)
	}
	return f, nil
}

func invalidTime(raw any) error {
	return domainerrors.InvalidTimeFormatf("invalid time format: %v: %s", quoteRaw(raw), timeFormatHint)
}

func quoteRaw(raw any) string {
	if s, ok := raw.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", raw)
}
