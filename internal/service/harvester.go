// Package service orchestrates scheduled report acquisition across the
// configured report types.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/report-harvester/internal/backfill"
	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/report"
	"github.com/report-harvester/internal/sink"
)

// Harvester acquires the default ("most recent period") window for each
// configured report type and writes the artifacts. Types run in parallel on
// a bounded worker pool; each acquisition is sequential internally.
type Harvester struct {
	registry       *report.Registry
	acquirer       backfill.Acquirer
	sink           sink.Sink
	maxConcurrency int

	now func() time.Time
}

// NewHarvester creates a harvester. maxConcurrency bounds the worker pool;
// values below 1 are treated as 1.
func NewHarvester(registry *report.Registry, acquirer backfill.Acquirer, artifactSink sink.Sink, maxConcurrency int) *Harvester {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Harvester{
		registry:       registry,
		acquirer:       acquirer,
		sink:           artifactSink,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// TypeResult is the outcome of one report type's acquisition.
type TypeResult struct {
	ReportType string `json:"reportType"`
	Artifact   string `json:"artifact,omitempty"`
	Bytes      int    `json:"bytes"`
	Error      string `json:"error,omitempty"`
}

// RunSummary aggregates per-type outcomes of one harvest run.
type RunSummary struct {
	RunID     string       `json:"runId"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []TypeResult `json:"results"`
}

// RunAll acquires every configured report type's default window. Per-type
// failures are recorded in the summary; partial success is a normal outcome
// and does not return an error.
func (h *Harvester) RunAll(ctx context.Context) *RunSummary {
	summary := &RunSummary{RunID: uuid.New().String()}
	logger := logging.FromContext(ctx).WithField("runId", summary.RunID)

	names := h.registry.Names()
	logger.WithFields(map[string]interface{}{
		"reportTypes": len(names),
		"workers":     h.maxConcurrency,
	}).Info("Harvest run starting")

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(h.maxConcurrency)

	for _, name := range names {
		group.Go(func() error {
			result := h.runType(groupCtx, name)
			mu.Lock()
			summary.Results = append(summary.Results, result)
			if result.Error == "" {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			mu.Unlock()
			// Per-type failures never abort the other types.
			return nil
		})
	}
	_ = group.Wait()

	logger.WithFields(map[string]interface{}{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Harvest run complete")

	return summary
}

// RunOne acquires a single report type's default window.
func (h *Harvester) RunOne(ctx context.Context, name string) (TypeResult, error) {
	if _, err := h.registry.Lookup(name); err != nil {
		return TypeResult{ReportType: name, Error: err.Error()}, err
	}
	result := h.runType(ctx, name)
	return result, nil
}

func (h *Harvester) runType(ctx context.Context, name string) TypeResult {
	result := TypeResult{ReportType: name}
	logger := logging.FromContext(ctx).WithField("reportType", name)

	spec, err := h.registry.Lookup(name)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	window := backfill.DefaultWindow(spec.Windowing, h.now())
	result.Artifact = window.ArtifactName(spec)

	doc, err := h.acquirer.Acquire(ctx, &report.Request{
		Type:  spec,
		Start: window.Start,
		End:   window.End,
	})
	if err != nil {
		result.Error = err.Error()
		logger.WithError(err).Error("Report acquisition failed")
		return result
	}

	// Scheduled runs overwrite the previous artifact for the period; the
	// latest fetch of a still-open period supersedes earlier ones.
	if err := h.sink.Write(ctx, result.Artifact, doc.Bytes); err != nil {
		result.Error = err.Error()
		logger.WithError(err).Error("Artifact write failed")
		return result
	}

	result.Bytes = len(doc.Bytes)
	logger.WithFields(map[string]interface{}{
		"artifact": result.Artifact,
		"bytes":    result.Bytes,
	}).Info("Report acquired")
	return result
}
