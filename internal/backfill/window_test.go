package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/report-harvester/internal/report"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthlyWindows(t *testing.T) {
	t.Run("two complete months", func(t *testing.T) {
		windows, err := Windows(report.WindowingMonthly, date(2024, 1, 1), date(2024, 3, 1), OldestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 2)

		assert.Equal(t, date(2024, 1, 1), windows[0].Start)
		assert.Equal(t, date(2024, 2, 1), windows[0].End)
		assert.Equal(t, "2024-01", windows[0].Label)

		assert.Equal(t, date(2024, 2, 1), windows[1].Start)
		assert.Equal(t, date(2024, 3, 1), windows[1].End)
		assert.Equal(t, "2024-02", windows[1].Label)
	})

	t.Run("partial leading month excluded", func(t *testing.T) {
		windows, err := Windows(report.WindowingMonthly, date(2024, 1, 15), date(2024, 4, 1), OldestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 2)
		assert.Equal(t, "2024-02", windows[0].Label)
		assert.Equal(t, "2024-03", windows[1].Label)
	})

	t.Run("partial trailing month excluded", func(t *testing.T) {
		windows, err := Windows(report.WindowingMonthly, date(2024, 1, 1), date(2024, 2, 20), OldestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, "2024-01", windows[0].Label)
	})

	t.Run("newest first reverses order", func(t *testing.T) {
		windows, err := Windows(report.WindowingMonthly, date(2024, 1, 1), date(2024, 7, 1), NewestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 6)
		assert.Equal(t, "2024-06", windows[0].Label)
		assert.Equal(t, "2024-01", windows[5].Label)
	})

	t.Run("year boundary", func(t *testing.T) {
		windows, err := Windows(report.WindowingMonthly, date(2023, 11, 1), date(2024, 2, 1), OldestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 3)
		assert.Equal(t, "2023-11", windows[0].Label)
		assert.Equal(t, "2023-12", windows[1].Label)
		assert.Equal(t, "2024-01", windows[2].Label)
	})
}

func TestDailyWindows(t *testing.T) {
	windows, err := Windows(report.WindowingDaily, date(2024, 2, 27), date(2024, 3, 2), OldestFirst)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	// 2024 is a leap year
	assert.Equal(t, "2024-02-27", windows[0].Label)
	assert.Equal(t, "2024-02-28", windows[1].Label)
	assert.Equal(t, "2024-02-29", windows[2].Label)
	assert.Equal(t, "2024-03-01", windows[3].Label)

	for _, w := range windows {
		assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
	}
}

func TestWeeklyWindows(t *testing.T) {
	t.Run("complete ISO weeks only", func(t *testing.T) {
		// 2024-01-01 is a Monday.
		windows, err := Windows(report.WindowingWeekly, date(2024, 1, 1), date(2024, 1, 22), OldestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 3)

		assert.Equal(t, date(2024, 1, 1), windows[0].Start)
		assert.Equal(t, "2024-W01", windows[0].Label)
		assert.Equal(t, "2024-W02", windows[1].Label)
		assert.Equal(t, "2024-W03", windows[2].Label)
	})

	t.Run("mid-week start moves to next Monday", func(t *testing.T) {
		// 2024-01-03 is a Wednesday; first complete week starts 01-08.
		windows, err := Windows(report.WindowingWeekly, date(2024, 1, 3), date(2024, 1, 22), OldestFirst)
		require.NoError(t, err)
		require.Len(t, windows, 2)
		assert.Equal(t, date(2024, 1, 8), windows[0].Start)
	})
}

func TestWindowsValidation(t *testing.T) {
	t.Run("inverted range", func(t *testing.T) {
		_, err := Windows(report.WindowingMonthly, date(2024, 3, 1), date(2024, 1, 1), OldestFirst)
		assert.Error(t, err)
	})

	t.Run("snapshot rule rejects range backfill", func(t *testing.T) {
		_, err := Windows(report.WindowingSnapshot, date(2024, 1, 1), date(2024, 3, 1), OldestFirst)
		assert.Error(t, err)
	})
}

func TestDefaultWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	t.Run("monthly is previous calendar month", func(t *testing.T) {
		w := DefaultWindow(report.WindowingMonthly, now)
		assert.Equal(t, date(2024, 2, 1), w.Start)
		assert.Equal(t, date(2024, 3, 1), w.End)
		assert.Equal(t, "2024-02", w.Label)
	})

	t.Run("daily is yesterday", func(t *testing.T) {
		w := DefaultWindow(report.WindowingDaily, now)
		assert.Equal(t, date(2024, 3, 14), w.Start)
		assert.Equal(t, date(2024, 3, 15), w.End)
	})

	t.Run("weekly is last complete ISO week", func(t *testing.T) {
		// 2024-03-15 is a Friday; current week started Monday 03-11.
		w := DefaultWindow(report.WindowingWeekly, now)
		assert.Equal(t, date(2024, 3, 4), w.Start)
		assert.Equal(t, date(2024, 3, 11), w.End)
		assert.Equal(t, "2024-W10", w.Label)
	})

	t.Run("snapshot has no data range", func(t *testing.T) {
		w := DefaultWindow(report.WindowingSnapshot, now)
		assert.True(t, w.Start.IsZero())
		assert.True(t, w.End.IsZero())
		assert.Equal(t, "2024-03-15", w.Label)
	})
}

func TestArtifactName(t *testing.T) {
	spec := report.TypeSpec{ArtifactPrefix: "sp-api-ledger-summary-view-data-", ArtifactExt: ".tsv"}
	w := Window{Label: "2024-01"}
	assert.Equal(t, "sp-api-ledger-summary-view-data-2024-01.tsv", w.ArtifactName(spec))
}
