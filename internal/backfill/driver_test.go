package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/report-harvester/internal/errors"
	"github.com/report-harvester/internal/report"
	"github.com/report-harvester/internal/sink"
)

// fakeAcquirer records acquisition calls and fails configured windows.
type fakeAcquirer struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	payload  []byte
}

func (f *fakeAcquirer) Acquire(_ context.Context, req *report.Request) (*report.Document, error) {
	label := req.Start.Format("2006-01")
	f.mu.Lock()
	f.calls = append(f.calls, label)
	f.mu.Unlock()

	if err, ok := f.failures[label]; ok {
		return nil, err
	}
	payload := f.payload
	if payload == nil {
		payload = []byte("sku\tqty\nA\t1\n")
	}
	return &report.Document{ReportID: "r-" + label, Bytes: payload}, nil
}

func (f *fakeAcquirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ledgerSpec() report.TypeSpec {
	return report.TypeSpec{
		Name:        "ledger-summary",
		APIType:     "GET_LEDGER_SUMMARY_VIEW_DATA",
		Windowing:   report.WindowingMonthly,
		ArtifactExt: ".artifact",
	}
}

func newTestDriver(acquirer Acquirer, s sink.Sink, opts Options) *Driver {
	d := NewDriver(acquirer, s, opts)
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestDriverAcquiresAllWindows(t *testing.T) {
	acquirer := &fakeAcquirer{}
	memSink := sink.NewMemorySink()
	driver := newTestDriver(acquirer, memSink, Options{})

	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 3, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)

	_, ok := memSink.Get("2024-01.artifact")
	assert.True(t, ok)
	_, ok = memSink.Get("2024-02.artifact")
	assert.True(t, ok)
}

func TestDriverPartialFailure(t *testing.T) {
	acquirer := &fakeAcquirer{
		failures: map[string]error{"2024-02": apperrors.NewReportFatalError("r-feb")},
	}
	memSink := sink.NewMemorySink()
	driver := newTestDriver(acquirer, memSink, Options{})

	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 3, 1))
	require.NoError(t, err, "one bad window never aborts the batch")

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Failures, "2024-02")

	_, ok := memSink.Get("2024-01.artifact")
	assert.True(t, ok)
	_, ok = memSink.Get("2024-02.artifact")
	assert.False(t, ok)
}

func TestDriverIdempotentSkip(t *testing.T) {
	acquirer := &fakeAcquirer{}
	memSink := sink.NewMemorySink()
	driver := newTestDriver(acquirer, memSink, Options{})

	first, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 7, 1))
	require.NoError(t, err)
	require.Equal(t, 6, first.Succeeded)
	require.Equal(t, 6, acquirer.callCount())

	second, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 7, 1))
	require.NoError(t, err)

	assert.Equal(t, 6, second.Skipped)
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, 6, acquirer.callCount(), "second run must perform zero acquisition calls")
}

func TestDriverResumability(t *testing.T) {
	acquirer := &fakeAcquirer{}
	memSink := sink.NewMemorySink()

	// Simulate a run interrupted after the first three windows.
	require.NoError(t, memSink.Write(context.Background(), "2024-01.artifact", []byte("x")))
	require.NoError(t, memSink.Write(context.Background(), "2024-02.artifact", []byte("x")))
	require.NoError(t, memSink.Write(context.Background(), "2024-03.artifact", []byte("x")))

	driver := newTestDriver(acquirer, memSink, Options{})
	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 7, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, []string{"2024-04", "2024-05", "2024-06"}, acquirer.calls,
		"completed windows must never be re-fetched")
}

func TestDriverForceRefetch(t *testing.T) {
	acquirer := &fakeAcquirer{}
	memSink := sink.NewMemorySink()
	require.NoError(t, memSink.Write(context.Background(), "2024-01.artifact", []byte("old")))

	driver := newTestDriver(acquirer, memSink, Options{Force: true})
	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 2, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)
	data, _ := memSink.Get("2024-01.artifact")
	assert.NotEqual(t, []byte("old"), data)
}

func TestDriverAuthErrorAbortsRun(t *testing.T) {
	acquirer := &fakeAcquirer{
		failures: map[string]error{"2024-01": apperrors.NewAuthError("token exchange failed", nil)},
	}
	memSink := sink.NewMemorySink()
	driver := newTestDriver(acquirer, memSink, Options{})

	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 7, 1))
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthError(err))
	assert.Equal(t, 1, acquirer.callCount(), "systemic failures must stop the run immediately")
	assert.Equal(t, 0, summary.Succeeded)
}

func TestDriverEmptyReport(t *testing.T) {
	t.Run("written by default to mark the window processed", func(t *testing.T) {
		acquirer := &fakeAcquirer{payload: []byte{}}
		memSink := sink.NewMemorySink()
		driver := newTestDriver(acquirer, memSink, Options{})

		summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 2, 1))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Succeeded)

		data, ok := memSink.Get("2024-01.artifact")
		assert.True(t, ok)
		assert.Empty(t, data)
	})

	t.Run("skipped when SkipEmpty is set", func(t *testing.T) {
		acquirer := &fakeAcquirer{payload: []byte{}}
		memSink := sink.NewMemorySink()
		driver := newTestDriver(acquirer, memSink, Options{SkipEmpty: true})

		summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 2, 1))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 0, memSink.Len())
	})
}

func TestDriverSinkFailureRecordedPerWindow(t *testing.T) {
	acquirer := &fakeAcquirer{}
	memSink := sink.NewMemorySink()
	memSink.FailWrites = apperrors.NewSinkError("2024-01.artifact", nil)
	driver := newTestDriver(acquirer, memSink, Options{})

	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, summary.Failures, 2)
}

func TestDriverCancellation(t *testing.T) {
	acquirer := &fakeAcquirer{}
	memSink := sink.NewMemorySink()
	driver := NewDriver(acquirer, memSink, Options{InterWindowDelay: time.Hour})
	driver.sleep = func(ctx context.Context, _ time.Duration) error {
		// The first inter-window wait observes cancellation.
		return context.Canceled
	}

	summary, err := driver.Run(context.Background(), ledgerSpec(), date(2024, 1, 1), date(2024, 7, 1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Succeeded, "cancellation must abort between windows")
	assert.Equal(t, 1, acquirer.callCount())
}
