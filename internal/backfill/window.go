// Package backfill drives the report acquisition engine over long historical
// time ranges with idempotent, restartable iteration.
package backfill

import (
	"fmt"
	"time"

	"github.com/report-harvester/internal/report"
)

// Order fixes the direction windows are processed in, so interruption and
// resumption always continue from a well-defined boundary.
type Order string

const (
	OldestFirst Order = "oldest-first"
	NewestFirst Order = "newest-first"
)

// Window is one time slice of a backfill range. Start is inclusive, End
// exclusive.
type Window struct {
	Start time.Time
	End   time.Time
	// Label names the window in artifact names and summaries, e.g.
	// "2024-01" for a monthly window.
	Label string
}

// ArtifactName returns the deterministic artifact name for this window of
// the given report type.
func (w Window) ArtifactName(spec report.TypeSpec) string {
	return spec.ArtifactPrefix + w.Label + spec.ArtifactExt
}

// Windows slices [from, to) into complete windows of the given rule, in the
// given order. Only whole calendar units fully inside the range are
// produced: a range starting mid-month yields no window for that month.
func Windows(rule report.Windowing, from, to time.Time, order Order) ([]Window, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("invalid range: from %s is not before to %s", from, to)
	}

	var windows []Window
	switch rule {
	case report.WindowingDaily:
		windows = dailyWindows(from, to)
	case report.WindowingWeekly:
		windows = weeklyWindows(from, to)
	case report.WindowingMonthly:
		windows = monthlyWindows(from, to)
	case report.WindowingSnapshot:
		return nil, fmt.Errorf("report type with snapshot windowing does not support range backfill")
	default:
		return nil, fmt.Errorf("unknown windowing rule %q", rule)
	}

	if order == NewestFirst {
		for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
			windows[i], windows[j] = windows[j], windows[i]
		}
	}
	return windows, nil
}

// DefaultWindow returns the "most recent period" window for the rule: the
// previous complete day, ISO week or calendar month relative to now. For
// snapshot types the window has no data range and is labeled by date.
func DefaultWindow(rule report.Windowing, now time.Time) Window {
	now = now.UTC()
	switch rule {
	case report.WindowingDaily:
		end := now.Truncate(24 * time.Hour)
		start := end.AddDate(0, 0, -1)
		return Window{Start: start, End: end, Label: start.Format("2006-01-02")}
	case report.WindowingWeekly:
		end := startOfISOWeek(now)
		start := end.AddDate(0, 0, -7)
		return Window{Start: start, End: end, Label: weekLabel(start)}
	case report.WindowingMonthly:
		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := end.AddDate(0, -1, 0)
		return Window{Start: start, End: end, Label: start.Format("2006-01")}
	default:
		return Window{Label: now.Format("2006-01-02")}
	}
}

func dailyWindows(from, to time.Time) []Window {
	var windows []Window
	cursor := from.UTC().Truncate(24 * time.Hour)
	if cursor.Before(from) {
		cursor = cursor.AddDate(0, 0, 1)
	}
	for {
		next := cursor.AddDate(0, 0, 1)
		if next.After(to) {
			break
		}
		windows = append(windows, Window{
			Start: cursor,
			End:   next,
			Label: cursor.Format("2006-01-02"),
		})
		cursor = next
	}
	return windows
}

func weeklyWindows(from, to time.Time) []Window {
	var windows []Window
	cursor := startOfISOWeek(from.UTC())
	if cursor.Before(from) {
		cursor = cursor.AddDate(0, 0, 7)
	}
	for {
		next := cursor.AddDate(0, 0, 7)
		if next.After(to) {
			break
		}
		windows = append(windows, Window{
			Start: cursor,
			End:   next,
			Label: weekLabel(cursor),
		})
		cursor = next
	}
	return windows
}

func monthlyWindows(from, to time.Time) []Window {
	var windows []Window
	from = from.UTC()
	cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	if cursor.Before(from) {
		cursor = cursor.AddDate(0, 1, 0)
	}
	for {
		next := cursor.AddDate(0, 1, 0)
		if next.After(to) {
			break
		}
		windows = append(windows, Window{
			Start: cursor,
			End:   next,
			Label: cursor.Format("2006-01"),
		})
		cursor = next
	}
	return windows
}

// startOfISOWeek returns 00:00 UTC of the Monday on or before t.
func startOfISOWeek(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return t.AddDate(0, 0, 1-weekday)
}

func weekLabel(start time.Time) string {
	year, week := start.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
