package diagnostics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fretcoach/chordverify/internal/verdict"
)

func TestVerdictLogRecordsAndSnapshots(t *testing.T) {
	t.Parallel()
	log := NewVerdictLog(4096)

	require.NoError(t, log.HandleVerdict(verdict.Match(time.Unix(1, 0))))
	require.NoError(t, log.HandleVerdict(verdict.Tick(time.Unix(2, 0), 12.5)))

	snap := log.Snapshot()
	require.Contains(t, string(snap), `"match"`)
	require.Contains(t, string(snap), `"tick"`)
}

func TestVerdictLogEvictsOldestWhenFull(t *testing.T) {
	t.Parallel()
	log := NewVerdictLog(512)

	for i := 0; i < 50; i++ {
		require.NoError(t, log.HandleVerdict(verdict.Match(time.Unix(int64(i), 0))))
	}

	snap := log.Snapshot()
	require.LessOrEqual(t, len(snap), 512)
}

func TestVerdictLogImplementsHandler(t *testing.T) {
	t.Parallel()
	var h verdict.Handler = NewVerdictLog(1024)
	require.Equal(t, "diagnostics.verdictlog", h.ID())
}

func TestCollectHostReportPopulatesStaticFields(t *testing.T) {
	t.Parallel()
	report := CollectHostReport(context.Background())
	require.NotEmpty(t, report.GOOS)
	require.NotEmpty(t, report.GOARCH)
	require.Greater(t, report.NumCPU, 0)
}
