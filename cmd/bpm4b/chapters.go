package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bpm4b/bpm4b/internal/chapters"
)

// collectChapters merges chapters from a JSON file with TITLE START pairs
// from the command line, file entries first. Any unparseable start time
// fails the whole set.
func collectChapters(file string, pairs []string) ([]chapters.Chapter, error) {
	var inputs []chapters.Input

	if file != "" {
		data, err := os.ReadFile(file) //#nosec G304 -- path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("read chapters file: %w", err)
		}
		inputs, err = chapters.DecodeInputs(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse chapters file %s: %w", file, err)
		}
	}

	fromArgs, err := chapters.FromPairs(pairs)
	if err != nil {
		return nil, err
	}
	inputs = append(inputs, fromArgs...)

	return chapters.FromInputs(inputs)
}
