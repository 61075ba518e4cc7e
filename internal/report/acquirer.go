package report

import (
	"context"
	"time"

	"github.com/report-harvester/internal/document"
	apperrors "github.com/report-harvester/internal/errors"
	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/retry"
	"github.com/report-harvester/internal/spapi"
)

// Default poll loop settings, used when a type spec leaves them zero.
const (
	DefaultPollInterval = 15 * time.Second
	DefaultPollDeadline = 5 * time.Minute
)

// API is the remote surface the acquirer drives. *spapi.Client implements it.
type API interface {
	CreateReport(ctx context.Context, reportType string, start, end time.Time, options map[string]string) (string, error)
	GetReport(ctx context.Context, reportID string) (*spapi.ReportStatus, error)
	GetReportDocument(ctx context.Context, documentID string) (*spapi.DocumentRef, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Acquirer runs one report through request, poll, terminal state and
// document fetch. It is safe for concurrent use; each Acquire call carries
// its own job state.
type Acquirer struct {
	api API

	// sleep is overridable in tests to skip real poll waits.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewAcquirer creates an acquirer over the given API.
func NewAcquirer(api API) *Acquirer {
	return &Acquirer{
		api:   api,
		sleep: retry.Sleep,
		now:   time.Now,
	}
}

// Acquire submits the report request, polls until a terminal state or the
// poll deadline, and fetches and decodes the resulting document. Transport
// and auth errors propagate unchanged; report outcomes map to report errors.
func (a *Acquirer) Acquire(ctx context.Context, req *Request) (*Document, error) {
	logger := logging.FromContext(ctx).WithField("reportType", req.Type.Name)

	options := req.Options
	if options == nil {
		options = req.Type.Options
	}

	reportID, err := a.api.CreateReport(ctx, req.Type.APIType, req.Start, req.End, options)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ReportID:  reportID,
		Status:    StatusSubmitted,
		CreatedAt: a.now(),
	}
	logger = logger.WithField("reportId", reportID)
	logger.Info("Report requested")

	if err := a.poll(ctx, job, req.Type); err != nil {
		return nil, err
	}

	// Download URLs are short-lived; fetch immediately after DONE.
	doc, err := a.fetchDocument(ctx, job)
	if err != nil {
		return nil, err
	}

	if doc.Empty() {
		logger.Info("Report completed with no records")
	} else {
		logger.WithField("bytes", len(doc.Bytes)).Info("Report document fetched")
	}
	return doc, nil
}

// poll repeatedly reads the job status at the type's poll interval until a
// terminal state, failing with a timeout error when the deadline elapses
// first. The abandoned job needs no explicit cancel call.
func (a *Acquirer) poll(ctx context.Context, job *Job, spec TypeSpec) error {
	logger := logging.FromContext(ctx).WithField("reportId", job.ReportID)

	interval := spec.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := spec.PollDeadline
	if deadline <= 0 {
		deadline = DefaultPollDeadline
	}
	pollUntil := a.now().Add(deadline)

	for {
		if err := a.sleep(ctx, interval); err != nil {
			return err
		}

		status, err := a.api.GetReport(ctx, job.ReportID)
		if err != nil {
			return err
		}

		if err := job.Advance(Status(status.ProcessingStatus)); err != nil {
			return err
		}

		switch job.Status {
		case StatusDone:
			job.DocumentID = status.ReportDocumentID
			logger.Info("Report generation complete")
			return nil
		case StatusFatal:
			return apperrors.NewReportFatalError(job.ReportID)
		case StatusCancelled:
			return apperrors.NewReportCancelledError(job.ReportID)
		default:
			logger.WithField("status", string(job.Status)).Debug("Report still processing")
		}

		if a.now().After(pollUntil) {
			return apperrors.NewReportTimeoutError(job.ReportID, string(job.Status))
		}
	}
}

// fetchDocument resolves the document reference and downloads every part in
// document order, returning the decoded, concatenated payload.
func (a *Acquirer) fetchDocument(ctx context.Context, job *Job) (*Document, error) {
	ref, err := a.api.GetReportDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}

	urls := append([]string{ref.URL}, ref.PartURLs...)
	parts := make([][]byte, 0, len(urls))
	for _, url := range urls {
		raw, err := a.api.Download(ctx, url)
		if err != nil {
			return nil, err
		}
		parts = append(parts, raw)
	}

	decoded, err := document.DecodeParts(parts, ref.Compressed())
	if err != nil {
		return nil, err
	}

	return &Document{
		ReportID:   job.ReportID,
		DocumentID: job.DocumentID,
		Bytes:      decoded,
	}, nil
}
