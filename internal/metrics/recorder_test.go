package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/fretcoach/chordverify/internal/pitch"
	"github.com/fretcoach/chordverify/internal/verdict"
)

func TestTestRecorderTracksOperationsDurationsAndErrors(t *testing.T) {
	t.Parallel()
	r := NewTestRecorder()

	r.RecordOperation("tick", "match")
	r.RecordOperation("tick", "match")
	r.RecordOperation("tick", "miss")
	r.RecordDuration("tick", 0.012)
	r.RecordDuration("tick", 0.031)
	r.RecordError("tick", "adapter_timeout")

	require.Equal(t, 2, r.GetOperationCount("tick", "match"))
	require.Equal(t, 1, r.GetOperationCount("tick", "miss"))
	require.Equal(t, 0, r.GetOperationCount("tick", "unknown"))
	require.Len(t, r.GetDurations("tick"), 2)
	require.Nil(t, r.GetDurations("nonexistent"))
	require.Equal(t, 1, r.GetErrorCount("tick", "adapter_timeout"))
}

func TestVerifierMetricsRegistersAndRecords(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewVerifierMetrics(reg)

	m.RecordOperation("tick", "match")
	m.RecordDuration("tick", 0.02)
	m.RecordError("tick", "adapter_timeout")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "chordverify_operations_total")
	require.Contains(t, names, "chordverify_operation_duration_seconds")
	require.Contains(t, names, "chordverify_errors_total")
}

func TestVerdictRecorderFeedsOperationsDurationsAndErrors(t *testing.T) {
	t.Parallel()
	r := NewTestRecorder()
	h := NewVerdictRecorder("metrics", r)
	require.Equal(t, "metrics", h.ID())

	now := time.Now()
	require.NoError(t, h.HandleVerdict(verdict.Tick(now, 15)))
	require.NoError(t, h.HandleVerdict(verdict.Match(now)))
	require.NoError(t, h.HandleVerdict(verdict.Miss(now, pitch.NewSet(pitch.C), pitch.NewSet(pitch.E))))
	require.NoError(t, h.HandleVerdict(verdict.Error(now, "device lost")))

	require.Equal(t, 1, r.GetOperationCount("tick", "ok"))
	require.Equal(t, 1, r.GetOperationCount("evaluate", "match"))
	require.Equal(t, 1, r.GetOperationCount("evaluate", "miss"))
	require.Len(t, r.GetDurations("inference"), 1)
	require.Equal(t, 1, r.GetErrorCount("verifier", "device-or-adapter"))
}

func TestNewVerdictRecorderDefaultsNilRecorderToNoOp(t *testing.T) {
	t.Parallel()
	h := NewVerdictRecorder("metrics", nil)
	require.NotPanics(t, func() {
		require.NoError(t, h.HandleVerdict(verdict.Tick(time.Now(), 1)))
	})
}

func TestNoOpRecorderDoesNotPanic(t *testing.T) {
	t.Parallel()
	var r Recorder = NoOpRecorder{}
	require.NotPanics(t, func() {
		r.RecordOperation("x", "y")
		r.RecordDuration("x", 1)
		r.RecordError("x", "y")
	})
}
