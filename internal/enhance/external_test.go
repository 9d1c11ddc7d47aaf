package enhance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalEnhance(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(in, []byte("pixels"), 0o644))

	// cp stands in for the real enhancer: argv is input then output.
	e := NewExternal("cp", "", 5*time.Second, zerolog.Nop())
	require.NoError(t, e.Enhance(context.Background(), in, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)
}

func TestExternalNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	e := NewExternal("false", "", 5*time.Second, zerolog.Nop())
	err := e.Enhance(context.Background(), filepath.Join(dir, "in.png"), out)

	require.Error(t, err)
	assert.NoFileExists(t, out, "a failed run must not leave output behind")
}

func TestExternalNoOutputWritten(t *testing.T) {
	dir := t.TempDir()

	e := NewExternal("true", "", 5*time.Second, zerolog.Nop())
	err := e.Enhance(context.Background(), filepath.Join(dir, "in.png"), filepath.Join(dir, "out.png"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrote no output")
}

func TestExternalTimeout(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	e := NewExternal(script, "", 50*time.Millisecond, zerolog.Nop())
	err := e.Enhance(context.Background(), filepath.Join(dir, "in.png"), filepath.Join(dir, "out.png"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
