package backends

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardartoul/tieredcache/pkg/metrics"
)

func TestInstrumentedRecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	tracker := metrics.NewLatencyTracker(0.01)
	s := NewInstrumented(newTestDisk(t), tracker)

	key, err := s.Lookup(ctx, NamespaceMarker, []string{"k"})
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = s.Save(ctx, NamespaceMarker, "k", nil, SaveOptions{})
	require.NoError(t, err)

	key, err = s.Lookup(ctx, NamespaceMarker, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, "k", key)

	assert.Error(t, s.Restore(ctx, NamespaceBundle, "missing", nil))

	lookup, err := tracker.GetStats("lookup_marker")
	require.NoError(t, err)
	assert.Equal(t, int64(1), lookup.Outcomes[metrics.OutcomeHit])
	assert.Equal(t, int64(1), lookup.Outcomes[metrics.OutcomeMiss])

	restore, err := tracker.GetStats("restore_bundle")
	require.NoError(t, err)
	assert.Equal(t, int64(1), restore.Outcomes[metrics.OutcomeError])

	save, err := tracker.GetStats("save_marker")
	require.NoError(t, err)
	assert.Equal(t, int64(1), save.Outcomes[metrics.OutcomeOK])
}

func TestDebugLogsOperations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewDebug(newTestDisk(t), logger)

	_, err := s.Save(context.Background(), NamespaceMarker, "build-v1-flk", nil, SaveOptions{})
	require.NoError(t, err)
	_, err = s.Lookup(context.Background(), NamespaceMarker, []string{"build-v1-flk"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out := buf.String()
	assert.Contains(t, out, "msg=saved")
	assert.Contains(t, out, "msg=\"lookup hit\"")
	assert.Contains(t, out, "key=build-v1-flk")
	assert.Contains(t, out, "component=store")
}
