package metrics

import (
	"github.com/fretcoach/chordverify/internal/verdict"
)

// VerdictRecorder is a verdict.Handler that feeds every verdict into a
// Recorder, so Prometheus (or a TestRecorder in unit tests) sees the same
// operation/duration/error counters regardless of which sinks are also
// subscribed to the dispatcher.
type VerdictRecorder struct {
	id       string
	recorder Recorder
}

// NewVerdictRecorder wraps rec as a dispatcher handler.
func NewVerdictRecorder(id string, rec Recorder) *VerdictRecorder {
	if rec == nil {
		rec = NoOpRecorder{}
	}
	return &VerdictRecorder{id: id, recorder: rec}
}

func (h *VerdictRecorder) ID() string { return h.id }

// HandleVerdict records one operation per tick, a duration sample for
// every inference, and an error count for every device/adapter failure.
func (h *VerdictRecorder) HandleVerdict(v verdict.Verdict) error {
	switch v.Kind {
	case verdict.KindTick:
		h.recorder.RecordOperation("tick", "ok")
		h.recorder.RecordDuration("inference", v.InferenceMs/1000.0)
	case verdict.KindMatch:
		h.recorder.RecordOperation("evaluate", "match")
	case verdict.KindMiss:
		h.recorder.RecordOperation("evaluate", "miss")
	case verdict.KindNotes:
		h.recorder.RecordOperation("evaluate", "notes")
	case verdict.KindError:
		h.recorder.RecordError("verifier", "device-or-adapter")
	}
	return nil
}
