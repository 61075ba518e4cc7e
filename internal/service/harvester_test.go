package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/report-harvester/internal/config"
	apperrors "github.com/report-harvester/internal/errors"
	"github.com/report-harvester/internal/report"
	"github.com/report-harvester/internal/sink"
)

type fakeAcquirer struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	peak     int
	failFor  map[string]error
}

func (f *fakeAcquirer) Acquire(_ context.Context, req *report.Request) (*report.Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Type.Name)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	err := f.failFor[req.Type.Name]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &report.Document{ReportID: "r-" + req.Type.Name, Bytes: []byte("rows\n")}, nil
}

func newTestHarvester(t *testing.T, acquirer *fakeAcquirer, maxConcurrency int) (*Harvester, *sink.MemorySink) {
	t.Helper()
	registry, err := report.NewRegistry(&config.ReportsConfig{
		Enabled: []string{"ledger-summary", "settlement", "all-orders", "fba-inventory"},
	})
	require.NoError(t, err)

	memSink := sink.NewMemorySink()
	h := NewHarvester(registry, acquirer, memSink, maxConcurrency)
	h.now = func() time.Time {
		return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	}
	return h, memSink
}

func TestRunAll(t *testing.T) {
	acquirer := &fakeAcquirer{}
	h, memSink := newTestHarvester(t, acquirer, 4)

	summary := h.RunAll(context.Background())

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, summary.Results, 4)
	assert.Equal(t, 4, memSink.Len())

	// One acquisition per enabled type, regardless of scheduling order.
	assert.ElementsMatch(t, []string{"ledger-summary", "settlement", "all-orders", "fba-inventory"},
		acquirer.calls)
}

func TestRunAllPartialFailure(t *testing.T) {
	acquirer := &fakeAcquirer{
		failFor: map[string]error{"settlement": apperrors.NewReportFatalError("r-settlement")},
	}
	h, memSink := newTestHarvester(t, acquirer, 4)

	summary := h.RunAll(context.Background())

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, memSink.Len(), "failed types leave no artifact")

	var failed *TypeResult
	for i := range summary.Results {
		if summary.Results[i].ReportType == "settlement" {
			failed = &summary.Results[i]
		}
	}
	require.NotNil(t, failed)
	assert.NotEmpty(t, failed.Error)
}

func TestRunAllBoundsConcurrency(t *testing.T) {
	acquirer := &fakeAcquirer{}
	h, _ := newTestHarvester(t, acquirer, 2)

	h.RunAll(context.Background())

	assert.LessOrEqual(t, acquirer.peak, 2, "worker pool must not exceed its limit")
}

func TestRunOne(t *testing.T) {
	t.Run("known type", func(t *testing.T) {
		acquirer := &fakeAcquirer{}
		h, memSink := newTestHarvester(t, acquirer, 4)

		result, err := h.RunOne(context.Background(), "ledger-summary")
		require.NoError(t, err)

		assert.Equal(t, "ledger-summary", result.ReportType)
		assert.Empty(t, result.Error)
		// May 2024 is the last complete month as of mid-June.
		assert.Equal(t, "sp-api-ledger-summary-view-data-2024-05.tsv", result.Artifact)
		assert.Equal(t, 1, memSink.Len())
	})

	t.Run("unknown type", func(t *testing.T) {
		acquirer := &fakeAcquirer{}
		h, _ := newTestHarvester(t, acquirer, 4)

		_, err := h.RunOne(context.Background(), "no-such-report")
		require.Error(t, err)
		assert.Empty(t, acquirer.calls)
	})

	t.Run("acquisition failure reported in result, not as error", func(t *testing.T) {
		acquirer := &fakeAcquirer{
			failFor: map[string]error{"ledger-summary": apperrors.NewReportTimeoutError("r1", "IN_PROGRESS")},
		}
		h, _ := newTestHarvester(t, acquirer, 4)

		result, err := h.RunOne(context.Background(), "ledger-summary")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Error)
	})
}

func TestRunTypeOverwritesExistingArtifact(t *testing.T) {
	acquirer := &fakeAcquirer{}
	h, memSink := newTestHarvester(t, acquirer, 4)

	require.NoError(t, memSink.Write(context.Background(),
		"sp-api-ledger-summary-view-data-2024-05.tsv", []byte("stale")))

	result, err := h.RunOne(context.Background(), "ledger-summary")
	require.NoError(t, err)
	require.Empty(t, result.Error)

	data, _ := memSink.Get("sp-api-ledger-summary-view-data-2024-05.tsv")
	assert.Equal(t, []byte("rows\n"), data, "scheduled runs supersede the previous fetch")
}
