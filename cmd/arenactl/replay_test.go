package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_Text(t *testing.T) {
	resetFlags(t)
	pageSize, maxSize = 1024, 4096
	script := writeScript(t,
		"alloc 100 as a",
		"alloc 200",
		"free a",
		"alloc 2000",
	)

	output, err := captureOutput(t, func() error {
		return runReplay([]string{script})
	})
	require.NoError(t, err)

	for _, want := range []string{
		"alloc 100 bytes -> 0x00000004 as a",
		"alloc 200 bytes -> 0x0000006C",
		"free 0x00000004",
		"alloc 2,000 bytes -> 0x00000138",
		"Final arena:",
		"arena:      3,072 bytes",
	} {
		assert.Contains(t, output, want)
	}
}

func TestReplay_JSONAndSnapshot(t *testing.T) {
	resetFlags(t)
	pageSize, maxSize = 1024, 2048
	jsonOut = true
	replaySnapshot = filepath.Join(t.TempDir(), "final.snap")
	script := writeScript(t,
		"alloc 1000",
		"alloc 1000",
		"alloc 1000",
	)

	output, err := captureOutput(t, func() error {
		return runReplay([]string{script})
	})
	require.NoError(t, err)

	var report replayReport
	decodeJSON(t, output, &report)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, uint32(4), report.Steps[0].Addr)
	assert.Equal(t, uint32(1008), report.Steps[1].Addr)
	assert.Contains(t, report.Steps[2].Error, "out of memory")
	assert.Equal(t, 1, report.Stats.FailedAllocs)
	assert.Equal(t, uint32(2048), report.Usage.ArenaBytes)
	assert.FileExists(t, replaySnapshot)

	// The snapshot decodes back to the same block map.
	snap := replaySnapshot
	resetFlags(t)
	jsonOut = true
	output, err = captureOutput(t, func() error {
		return runInspect([]string{snap})
	})
	require.NoError(t, err)

	var inspected inspectReport
	decodeJSON(t, output, &inspected)
	assert.Equal(t, report.Blocks, inspected.Blocks)
	assert.Equal(t, uint32(2048), inspected.Header.Size)
	assert.Positive(t, inspected.Compressed)
}

func TestReplay_FileBacked(t *testing.T) {
	resetFlags(t)
	pageSize = 4096
	replayFile = filepath.Join(t.TempDir(), "arena.heap")
	quiet = true

	first := writeScript(t, "alloc 64 as a", "write a persisted")
	_, err := captureOutput(t, func() error { return runReplay([]string{first}) })
	require.NoError(t, err)

	quiet = false
	second := writeScript(t, "read 4 9")
	output, err := captureOutput(t, func() error { return runReplay([]string{second}) })
	require.NoError(t, err)
	assert.Contains(t, output, `read 0x00000004: "persisted"`)
}

func TestReplay_SyntaxError(t *testing.T) {
	resetFlags(t)
	script := writeScript(t, "alloc 10", "frobnicate")

	_, err := captureOutput(t, func() error {
		return runReplay([]string{script})
	})
	require.ErrorIs(t, err, errSyntax)
}

func TestInspect_Text(t *testing.T) {
	resetFlags(t)
	pageSize = 1024
	snap := filepath.Join(t.TempDir(), "a.snap")
	script := writeScript(t, "alloc 10", "save "+snap)
	quiet = true
	_, err := captureOutput(t, func() error { return runReplay([]string{script}) })
	require.NoError(t, err)

	quiet = false
	output, err := captureOutput(t, func() error { return runInspect([]string{snap}) })
	require.NoError(t, err)
	for _, want := range []string{
		"Version: 1",
		"Arena: 1,024 bytes",
		"✓ Checksum valid",
		"0x00000000  0x00000004            10  used",
	} {
		assert.Contains(t, output, want)
	}
}

func TestInspect_MissingFile(t *testing.T) {
	resetFlags(t)
	err := runInspect([]string{filepath.Join(t.TempDir(), "nope.snap")})
	require.Error(t, err)
}
