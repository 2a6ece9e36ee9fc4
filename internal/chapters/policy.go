package chapters

import (
	"fmt"
	"slices"
	"strings"

	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

// Policy decides what happens to chapter sequences that are out of order or
// start before zero.
type Policy string

const (
	// PolicyPassthrough hands chapters to the encoder untouched.
	PolicyPassthrough Policy = "passthrough"
	// PolicyReject fails on negative or out-of-order start times.
	PolicyReject Policy = "reject"
	// PolicySort rejects negative start times and stable-sorts the rest.
	PolicySort Policy = "sort"
)

// ParsePolicy parses a policy name. The empty string selects passthrough.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PolicyPassthrough, nil
	case PolicyPassthrough, PolicyReject, PolicySort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown chapter policy %q (must be passthrough, reject, or sort)", name)
	}
}

// Apply checks or reorders chapters according to the policy. The input slice
// is never modified.
func (p Policy) Apply(chapters []Chapter) ([]Chapter, error) {
	switch p {
	case PolicyReject:
		if err := checkNonNegative(chapters); err != nil {
			return nil, err
		}
		for i := 1; i < len(chapters); i++ {
			if chapters[i].Start < chapters[i-1].Start {
				return nil, domainerrors.Validationf(
					"chapter %d (%q) starts at %s, before chapter %d (%q) at %s",
					i+1, chapters[i].Title, FormatClock(chapters[i].Start),
					i, chapters[i-1].Title, FormatClock(chapters[i-1].Start),
				)
			}
		}
		return slices.Clone(chapters), nil

	case PolicySort:
		if err := checkNonNegative(chapters); err != nil {
			return nil, err
		}
		sorted := slices.Clone(chapters)
		slices.SortStableFunc(sorted, func(a, b Chapter) int {
			switch {
			case a.Start < b.Start:
				return -1
			case a.Start > b.Start:
				return 1
			default:
				return 0
			}
		})
		return sorted, nil

	default:
		return slices.Clone(chapters), nil
	}
}

func checkNonNegative(chapters []Chapter) error {
	for i, ch := range chapters {
		if ch.Start < 0 {
			return domainerrors.Validationf("chapter %d (%q) has a negative start time %s", i+1, ch.Title, FormatClock(ch.Start))
		}
	}
	return nil
}
