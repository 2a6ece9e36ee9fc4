// Package chapters turns user-supplied chapter markers into the FFMETADATA1
// text that ffmpeg reads through -map_metadata.
package chapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

// Chapter is a named time range in seconds. End is nil for the last chapter
// of a sequence, which the muxer extends to the end of the track.
type Chapter struct {
	Title string   `json:"title"`
	Start float64  `json:"start_time"`
	End   *float64 `json:"end_time,omitempty"`
}

// Input is a chapter as it arrives from a request body or the command line.
// StartTime holds either a JSON number or a time string ("390", "6:30.5").
type Input struct {
	Title     string `json:"title" doc:"Chapter title, written verbatim (reserved characters are escaped)"`
	StartTime any    `json:"start_time" doc:"Start time in seconds (390, \"390.5\") or MM:SS (\"6:30\")"`
}

// DecodeInputs reads a JSON array of inputs. Numbers are kept as
// json.Number so ParseTime sees them unrounded. Anything after the array
// other than whitespace is an error.
func DecodeInputs(r io.Reader) ([]Input, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var inputs []Input
	if err := dec.Decode(&inputs); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after chapter array")
	}
	return inputs, nil
}

// FromInputs parses the start time of every input. The first unparseable
// entry aborts the whole sequence.
func FromInputs(inputs []Input) ([]Chapter, error) {
	result := make([]Chapter, 0, len(inputs))
	for i, in := range inputs {
		start, err := ParseTime(in.StartTime)
		if err != nil {
			return nil, domainerrors.InvalidTimeFormatf("chapter %d (%q): %s", i+1, in.Title, err.Error())
		}
		result = append(result, Chapter{Title: in.Title, Start: start})
	}
	return result, nil
}

// FromPairs builds inputs from alternating title/start arguments, the shape
// the convert command accepts on its command line.
func FromPairs(args []string) ([]Input, error) {
	if len(args)%2 != 0 {
		return nil, domainerrors.Validationf("chapter arguments must be TITLE START pairs, got %d values", len(args))
	}
	inputs := make([]Input, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		inputs = append(inputs, Input{Title: args[i], StartTime: args[i+1]})
	}
	return inputs, nil
}

// String renders a chapter for logs and CLI output.
func (c Chapter) String() string {
	if c.End == nil {
		return fmt.Sprintf("%s [%s - end]", c.Title, FormatClock(c.Start))
	}
	return fmt.Sprintf("%s [%s - %s]", c.Title, FormatClock(c.Start), FormatClock(*c.End))
}
