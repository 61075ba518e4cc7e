package backfill

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/report-harvester/internal/errors"
	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/report"
	"github.com/report-harvester/internal/retry"
	"github.com/report-harvester/internal/sink"
)

// Acquirer is the report acquisition engine the driver steps window by
// window. *report.Acquirer implements it.
type Acquirer interface {
	Acquire(ctx context.Context, req *report.Request) (*report.Document, error)
}

// Options tunes one backfill run.
type Options struct {
	// Order defaults to OldestFirst.
	Order Order
	// Force re-fetches windows whose artifact already exists.
	Force bool
	// InterWindowDelay is the pause between windows, distinct from the
	// transport's retry backoff. It keeps aggregate request volume under
	// account limits even when every call succeeds first try.
	InterWindowDelay time.Duration
	// ProgressEvery emits a progress summary every N windows. Zero disables.
	ProgressEvery int
	// SkipEmpty leaves windows whose report came back empty unwritten.
	// The default writes the empty artifact so the window reads as
	// processed on the next run.
	SkipEmpty bool
}

// Summary is the structured outcome of one backfill run. Partial success is
// a normal, reportable outcome.
type Summary struct {
	RunID      string            `json:"runId"`
	ReportType string            `json:"reportType"`
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	// Failures maps window label to the last error seen for it.
	Failures map[string]string `json:"failures,omitempty"`
}

// Driver iterates a historical range for one report type. Completion is
// detected by artifact presence at the sink, never by a checkpoint file, so
// re-running an interrupted range reproduces exactly the remaining work.
type Driver struct {
	acquirer Acquirer
	sink     sink.Sink
	opts     Options

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a backfill driver.
func NewDriver(acquirer Acquirer, artifactSink sink.Sink, opts Options) *Driver {
	if opts.Order == "" {
		opts.Order = OldestFirst
	}
	return &Driver{
		acquirer: acquirer,
		sink:     artifactSink,
		opts:     opts,
		sleep:    retry.Sleep,
	}
}

// Run backfills [from, to) for the report type. Report and sink failures are
// recorded per window and the run continues; auth and credential failures
// abort the run, as does cancellation. The summary is returned in all cases.
func (d *Driver) Run(ctx context.Context, spec report.TypeSpec, from, to time.Time) (*Summary, error) {
	summary := &Summary{
		RunID:      uuid.New().String(),
		ReportType: spec.Name,
		Failures:   make(map[string]string),
	}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"reportType": spec.Name,
		"runId":      summary.RunID,
	})

	windows, err := Windows(spec.Windowing, from, to, d.opts.Order)
	if err != nil {
		return summary, err
	}
	summary.Total = len(windows)

	logger.WithFields(map[string]interface{}{
		"windows": len(windows),
		"from":    from.Format(time.RFC3339),
		"to":      to.Format(time.RFC3339),
		"order":   string(d.opts.Order),
	}).Info("Backfill run starting")

	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := d.processWindow(ctx, logger, spec, window, summary); err != nil {
			return summary, err
		}

		if d.opts.ProgressEvery > 0 && (i+1)%d.opts.ProgressEvery == 0 {
			logger.WithFields(map[string]interface{}{
				"processed": i + 1,
				"total":     summary.Total,
				"succeeded": summary.Succeeded,
				"skipped":   summary.Skipped,
				"failed":    summary.Failed,
			}).Info("Backfill progress")
		}

		if d.opts.InterWindowDelay > 0 && i < len(windows)-1 {
			if err := d.sleep(ctx, d.opts.InterWindowDelay); err != nil {
				return summary, err
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("Backfill run complete")

	return summary, nil
}

func (d *Driver) processWindow(ctx context.Context, logger *logging.Logger, spec report.TypeSpec, window Window, summary *Summary) error {
	name := window.ArtifactName(spec)
	windowLogger := logger.WithFields(map[string]interface{}{
		"window":   window.Label,
		"artifact": name,
	})

	if !d.opts.Force {
		present, err := d.sink.Exists(ctx, name)
		if err != nil {
			summary.Failed++
			summary.Failures[window.Label] = err.Error()
			windowLogger.WithError(err).Warn("Existence check failed, window skipped as failed")
			return nil
		}
		if present {
			summary.Skipped++
			windowLogger.Debug("Artifact already present, window skipped")
			return nil
		}
	}

	doc, err := d.acquirer.Acquire(ctx, &report.Request{
		Type:  spec,
		Start: window.Start,
		End:   window.End,
	})
	if err != nil {
		// Systemic failures abort the run; per-window report failures are
		// recorded and the run continues.
		if apperrors.IsAuthError(err) || apperrors.IsCredentialError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.Failed++
		summary.Failures[window.Label] = err.Error()
		windowLogger.WithError(err).Warn("Window acquisition failed, continuing")
		return nil
	}

	if doc.Empty() && d.opts.SkipEmpty {
		summary.Succeeded++
		windowLogger.Info("Report empty, artifact not written")
		return nil
	}

	if err := d.sink.Write(ctx, name, doc.Bytes); err != nil {
		summary.Failed++
		summary.Failures[window.Label] = err.Error()
		windowLogger.WithError(err).Warn("Artifact write failed, continuing")
		return nil
	}

	summary.Succeeded++
	windowLogger.WithField("bytes", len(doc.Bytes)).Info("Window acquired")
	return nil
}
