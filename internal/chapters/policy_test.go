package chapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyPassthrough, false},
		{"passthrough", PolicyPassthrough, false},
		{"REJECT", PolicyReject, false},
		{" sort ", PolicySort, false},
		{"shuffle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func unordered() []Chapter {
	return []Chapter{
		{Title: "B", Start: 120},
		{Title: "A", Start: 60},
		{Title: "A2", Start: 60},
		{Title: "C", Start: 300},
	}
}

func TestPolicy_Passthrough(t *testing.T) {
	in := append(unordered(), Chapter{Title: "Neg", Start: -5})

	got, err := PolicyPassthrough.Apply(in)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	// Returned slice is independent of the input.
	got[0].Title = "changed"
	assert.Equal(t, "B", in[0].Title)
}

func TestPolicy_Reject(t *testing.T) {
	_, err := PolicyReject.Apply(unordered())
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	assert.Contains(t, err.Error(), `chapter 2 ("A")`)

	_, err = PolicyReject.Apply([]Chapter{{Title: "Neg", Start: -1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")

	ordered := []Chapter{{Title: "A", Start: 0}, {Title: "B", Start: 0}, {Title: "C", Start: 10}}
	got, err := PolicyReject.Apply(ordered)
	require.NoError(t, err)
	assert.Equal(t, ordered, got)
}

func TestPolicy_Sort(t *testing.T) {
	in := unordered()

	got, err := PolicySort.Apply(in)
	require.NoError(t, err)

	titles := make([]string, len(got))
	for i, ch := range got {
		titles[i] = ch.Title
	}
	assert.Equal(t, []string{"A", "A2", "B", "C"}, titles)
	assert.Equal(t, "B", in[0].Title, "input must not be reordered")

	_, err = PolicySort.Apply([]Chapter{{Title: "Neg", Start: -0.5}})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestPolicy_EmptyInput(t *testing.T) {
	for _, p := range []Policy{PolicyPassthrough, PolicyReject, PolicySort} {
		got, err := p.Apply(nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}
