package report

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestActionsWritesOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	var stdout bytes.Buffer
	a := NewActions(path, &stdout, discard)

	require.NoError(t, a.SetCacheHit(false))
	require.NoError(t, a.SetCacheHit(true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cache-hit=false\ncache-hit=true\n", string(data))
	assert.Empty(t, stdout.String())
}

func TestActionsWithoutOutputFile(t *testing.T) {
	var stdout bytes.Buffer
	a := NewActions("", &stdout, discard)

	require.NoError(t, a.SetCacheHit(true))
	assert.Equal(t, "cache-hit=true\n", stdout.String())
}

func TestActionsWorkflowCommands(t *testing.T) {
	var stdout bytes.Buffer
	a := NewActions("", &stdout, discard)

	a.Warning("100% broken\nsecond line")
	a.Failure("Input required and not supplied: key")

	assert.Equal(t,
		"::warning::100%25 broken%0Asecond line\n::error::Input required and not supplied: key\n",
		stdout.String())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, set := r.CacheHit()
	assert.False(t, set)

	require.NoError(t, r.SetCacheHit(true))
	r.Warning("w")
	r.Failure("f")

	hit, set := r.CacheHit()
	assert.True(t, set)
	assert.True(t, hit)
	assert.Equal(t, []string{"w"}, r.Warnings())
	assert.Equal(t, []string{"f"}, r.Failures())
}
