// Package report drives a single report through the remote generation
// lifecycle: request, poll, terminal state, document fetch.
package report

import (
	"fmt"
	"time"
)

// Status is the remote-side processing status of a report job.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusInQueue    Status = "IN_QUEUE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusFatal      Status = "FATAL"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the status ends the job lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFatal, StatusCancelled:
		return true
	}
	return false
}

// Request describes one logical report to acquire. Immutable once created.
type Request struct {
	Type    TypeSpec
	Start   time.Time
	End     time.Time
	Options map[string]string
}

// Job tracks the remote-side state of a requested report. Only polling
// mutates it, and never out of a terminal state.
type Job struct {
	ReportID   string
	Status     Status
	DocumentID string
	CreatedAt  time.Time
}

// Advance moves the job to the observed status. Transitions out of a
// terminal state are rejected.
func (j *Job) Advance(next Status) error {
	if j.Status.Terminal() && next != j.Status {
		return fmt.Errorf("report %s: invalid transition %s -> %s", j.ReportID, j.Status, next)
	}
	j.Status = next
	return nil
}

// Document is a fully retrieved and decoded report payload. An empty payload
// is a valid completion, not an error.
type Document struct {
	ReportID   string
	DocumentID string
	Bytes      []byte
}

// Empty reports whether the document carries no records.
func (d *Document) Empty() bool {
	return len(d.Bytes) == 0
}
