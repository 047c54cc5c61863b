// Package diagnostics provides a bounded audit trail of recent verdicts and
// a one-time host/CPU report, both off the hot inference path.
package diagnostics

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/smallnest/ringbuffer"

	"github.com/fretcoach/chordverify/internal/verdict"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// VerdictLog is a bounded, mutex-protected newline-delimited-JSON audit
// trail of recently dispatched verdicts. It is deliberately NOT the SRB's
// lock-free design: the audit log is read far less often than it is
// written, and a brief lock here never touches the audio callback.
type VerdictLog struct {
	mu  sync.Mutex
	buf *ringbuffer.RingBuffer
}

// NewVerdictLog constructs a VerdictLog backed by a fixed-size byte ring of
// capacityBytes; once full, the oldest entries are evicted to make room for
// new ones.
func NewVerdictLog(capacityBytes int) *VerdictLog {
	if capacityBytes <= 0 {
		capacityBytes = 64 * 1024
	}
	return &VerdictLog{buf: ringbuffer.New(capacityBytes)}
}

// HandleVerdict appends v to the log as one JSON line, implementing
// verdict.Handler so it can be registered directly on a Dispatcher.
func (l *VerdictLog) HandleVerdict(v verdict.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if free := l.buf.Free(); free < len(line) {
		discard := make([]byte, len(line)-free)
		_, _ = l.buf.Read(discard)
	}
	_, err = l.buf.Write(line)
	return err
}

func (l *VerdictLog) ID() string { return "diagnostics.verdictlog" }

// Snapshot returns the currently buffered entries without disturbing them,
// for a diagnostics endpoint or crash report.
func (l *VerdictLog) Snapshot() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.buf.Length()
	if n == 0 {
		return nil
	}
	return l.buf.Bytes()
}
