package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpm4b/bpm4b/internal/chapters"
	"github.com/bpm4b/bpm4b/internal/media/probe"
)

func TestInspect_MissingFile(t *testing.T) {
	env := setupCLIEnv(t)

	_, _, err := runCLI(t, "inspect", filepath.Join(env.dir, "missing.m4b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestInspect_RequiresArgument(t *testing.T) {
	_, _, err := runCLI(t, "inspect")
	assert.Error(t, err)
}

func TestRenderInfo(t *testing.T) {
	end := 390.0
	out := renderInfo(&probe.Info{
		Path:     "book.m4b",
		Format:   "M4B",
		Duration: 12*time.Minute + 30*time.Second,
		Title:    "My Book",
		Chapters: []chapters.Chapter{
			{Title: "Intro", Start: 0, End: &end},
			{Title: "Chapter 1", Start: 390},
		},
	})

	assert.Contains(t, out, "book.m4b\n")
	assert.Contains(t, out, "Format:   M4B")
	assert.Contains(t, out, "Duration: 12:30.000")
	assert.Contains(t, out, "Title:    My Book")
	assert.NotContains(t, out, "Artist:")
	assert.Contains(t, out, "Intro")
	assert.Contains(t, out, "6:30.000")
	assert.Contains(t, out, "end")
}

func TestRenderInfo_NoChapters(t *testing.T) {
	out := renderInfo(&probe.Info{Path: "plain.mp3", Format: "MP3"})

	assert.Contains(t, out, "Duration: unknown")
	assert.Contains(t, out, "No chapters")
}
