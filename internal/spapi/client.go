// Package spapi implements the Selling Partner Reports API client
// (2021-06-30 version): report creation, status polls, document references
// and document downloads. All calls go through the rate-limited transport.
package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/report-harvester/internal/ratelimit"
	"github.com/report-harvester/internal/transport"
)

const reportsAPIVersion = "2021-06-30"

// timeFormat is the timestamp layout the Reports API expects.
const timeFormat = "2006-01-02T15:04:05Z"

// Client calls the Reports API for one marketplace set.
type Client struct {
	endpoint       string
	marketplaceIDs []string
	transport      *transport.Transport
}

// NewClient creates a Reports API client.
func NewClient(endpoint string, marketplaceIDs []string, tp *transport.Transport) *Client {
	return &Client{
		endpoint:       endpoint,
		marketplaceIDs: marketplaceIDs,
		transport:      tp,
	}
}

// createReportRequest is the report creation payload.
type createReportRequest struct {
	ReportType     string            `json:"reportType"`
	DataStartTime  string            `json:"dataStartTime,omitempty"`
	DataEndTime    string            `json:"dataEndTime,omitempty"`
	MarketplaceIDs []string          `json:"marketplaceIds"`
	ReportOptions  map[string]string `json:"reportOptions,omitempty"`
}

// createReportResponse is the report creation response.
type createReportResponse struct {
	ReportID string `json:"reportId"`
}

// ReportStatus is the remote-side view of a report job.
type ReportStatus struct {
	ReportID         string `json:"reportId"`
	ProcessingStatus string `json:"processingStatus"`
	ReportDocumentID string `json:"reportDocumentId"`
	CreatedTime      string `json:"createdTime"`
}

// DocumentRef points at a retrievable report document. Download URLs are
// short-lived and must be fetched promptly.
type DocumentRef struct {
	ReportDocumentID     string `json:"reportDocumentId"`
	URL                  string `json:"url"`
	CompressionAlgorithm string `json:"compressionAlgorithm"`
	// PartURLs carries additional document parts for paginated reports, in
	// document order. Usually empty.
	PartURLs []string `json:"partUrls"`
}

// Compressed reports whether the document payload is gzip-compressed.
func (d *DocumentRef) Compressed() bool {
	return d.CompressionAlgorithm == "GZIP"
}

// CreateReport requests creation of a report and returns the remote report
// (job) ID.
func (c *Client) CreateReport(ctx context.Context, reportType string, start, end time.Time, options map[string]string) (string, error) {
	payload := createReportRequest{
		ReportType:     reportType,
		MarketplaceIDs: c.marketplaceIDs,
		ReportOptions:  options,
	}
	if !start.IsZero() {
		payload.DataStartTime = start.UTC().Format(timeFormat)
	}
	if !end.IsZero() {
		payload.DataEndTime = end.UTC().Format(timeFormat)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode create report payload: %w", err)
	}

	resp, err := c.transport.Execute(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/reports/%s/reports", c.endpoint, reportsAPIVersion),
		Body:   body,
		Header: jsonHeader(),
		Route:  ratelimit.RouteCreateReport,
	})
	if err != nil {
		return "", err
	}

	var parsed createReportResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode create report response: %w", err)
	}
	if parsed.ReportID == "" {
		return "", fmt.Errorf("create report response contained no reportId")
	}
	return parsed.ReportID, nil
}

// GetReport fetches the current processing status of a report.
func (c *Client) GetReport(ctx context.Context, reportID string) (*ReportStatus, error) {
	resp, err := c.transport.Execute(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/reports/%s/reports/%s", c.endpoint, reportsAPIVersion, reportID),
		Route:  ratelimit.RouteReportStatus,
	})
	if err != nil {
		return nil, err
	}

	var status ReportStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode report status response: %w", err)
	}
	return &status, nil
}

// GetReportDocument resolves a document ID into a download reference.
func (c *Client) GetReportDocument(ctx context.Context, documentID string) (*DocumentRef, error) {
	resp, err := c.transport.Execute(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/reports/%s/documents/%s", c.endpoint, reportsAPIVersion, documentID),
		Route:  ratelimit.RouteFetchDocument,
	})
	if err != nil {
		return nil, err
	}

	var ref DocumentRef
	if err := json.Unmarshal(resp.Body, &ref); err != nil {
		return nil, fmt.Errorf("failed to decode report document response: %w", err)
	}
	if ref.URL == "" {
		return nil, fmt.Errorf("report document response contained no url")
	}
	return &ref, nil
}

// Download fetches raw document bytes from a pre-signed URL. No bearer token
// is attached; the URL itself carries authorization.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.transport.Execute(ctx, &transport.Request{
		Method:   http.MethodGet,
		URL:      url,
		Route:    ratelimit.RouteFetchDocument,
		SkipAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}
