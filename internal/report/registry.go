package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/report-harvester/internal/config"
)

// Windowing names the rule that slices a time range into backfill windows.
// The concrete window math lives with the backfill driver; report types only
// declare which rule applies.
type Windowing string

const (
	WindowingDaily   Windowing = "daily"
	WindowingWeekly  Windowing = "weekly"
	WindowingMonthly Windowing = "monthly"
	// WindowingSnapshot marks point-in-time reports with no data range.
	WindowingSnapshot Windowing = "snapshot"
)

// TypeSpec is the static description of one configured report type.
type TypeSpec struct {
	// Name is the operator-facing selector, e.g. "ledger-summary".
	Name string
	// APIType is the remote report type identifier.
	APIType string
	// Options are fixed report options sent with every creation request.
	Options map[string]string
	// Windowing selects the backfill slicing rule.
	Windowing Windowing
	// PollInterval and PollDeadline tune the status poll loop.
	PollInterval time.Duration
	PollDeadline time.Duration
	// ArtifactPrefix and ArtifactExt shape artifact names:
	// <prefix><window-label><ext>. Names are a pure function of type and
	// window bounds so existence checks are stable across runs.
	ArtifactPrefix string
	ArtifactExt    string
}

// builtinTypes mirrors the report catalog of the production pipeline.
var builtinTypes = map[string]TypeSpec{
	"sales-and-traffic": {
		Name:           "sales-and-traffic",
		APIType:        "GET_SALES_AND_TRAFFIC_REPORT",
		Options:        map[string]string{"dateGranularity": "DAY", "asinGranularity": "CHILD"},
		Windowing:      WindowingDaily,
		PollInterval:   20 * time.Second,
		PollDeadline:   5 * time.Minute,
		ArtifactPrefix: "sp-api-sales-and-traffic-",
		ArtifactExt:    ".json",
	},
	"settlement": {
		Name:           "settlement",
		APIType:        "GET_V2_SETTLEMENT_REPORT_DATA_FLAT_FILE_V2",
		Windowing:      WindowingWeekly,
		PollInterval:   20 * time.Second,
		PollDeadline:   5 * time.Minute,
		ArtifactPrefix: "sp-api-settlement-report-",
		ArtifactExt:    ".tsv",
	},
	"ledger-summary": {
		Name:           "ledger-summary",
		APIType:        "GET_LEDGER_SUMMARY_VIEW_DATA",
		Options:        map[string]string{"aggregatedByTimePeriod": "MONTHLY"},
		Windowing:      WindowingMonthly,
		PollInterval:   20 * time.Second,
		PollDeadline:   6 * time.Minute,
		ArtifactPrefix: "sp-api-ledger-summary-view-data-",
		ArtifactExt:    ".tsv",
	},
	"ledger-detail": {
		Name:           "ledger-detail",
		APIType:        "GET_LEDGER_DETAIL_VIEW_DATA",
		Windowing:      WindowingMonthly,
		PollInterval:   20 * time.Second,
		PollDeadline:   6 * time.Minute,
		ArtifactPrefix: "sp-api-ledger-detail-view-data-",
		ArtifactExt:    ".tsv",
	},
	"brand-analytics-search-query-weekly": {
		Name:           "brand-analytics-search-query-weekly",
		APIType:        "GET_BRAND_ANALYTICS_SEARCH_TERMS_REPORT",
		Options:        map[string]string{"reportPeriod": "WEEK"},
		Windowing:      WindowingWeekly,
		PollInterval:   20 * time.Second,
		PollDeadline:   10 * time.Minute,
		ArtifactPrefix: "sp-api-brand-analytics-search-query-weekly-",
		ArtifactExt:    ".json",
	},
	"brand-analytics-search-query-monthly": {
		Name:           "brand-analytics-search-query-monthly",
		APIType:        "GET_BRAND_ANALYTICS_SEARCH_TERMS_REPORT",
		Options:        map[string]string{"reportPeriod": "MONTH"},
		Windowing:      WindowingMonthly,
		PollInterval:   20 * time.Second,
		PollDeadline:   10 * time.Minute,
		ArtifactPrefix: "sp-api-brand-analytics-search-query-monthly-",
		ArtifactExt:    ".json",
	},
	"brand-analytics-repeat-purchase-weekly": {
		Name:           "brand-analytics-repeat-purchase-weekly",
		APIType:        "GET_BRAND_ANALYTICS_REPEAT_PURCHASE_REPORT",
		Options:        map[string]string{"reportPeriod": "WEEK"},
		Windowing:      WindowingWeekly,
		PollInterval:   20 * time.Second,
		PollDeadline:   10 * time.Minute,
		ArtifactPrefix: "sp-api-brand-analytics-repeat-purchase-weekly-",
		ArtifactExt:    ".json",
	},
	"brand-analytics-repeat-purchase-monthly": {
		Name:           "brand-analytics-repeat-purchase-monthly",
		APIType:        "GET_BRAND_ANALYTICS_REPEAT_PURCHASE_REPORT",
		Options:        map[string]string{"reportPeriod": "MONTH"},
		Windowing:      WindowingMonthly,
		PollInterval:   20 * time.Second,
		PollDeadline:   10 * time.Minute,
		ArtifactPrefix: "sp-api-brand-analytics-repeat-purchase-monthly-",
		ArtifactExt:    ".json",
	},
	"all-orders": {
		Name:           "all-orders",
		APIType:        "GET_FLAT_FILE_ALL_ORDERS_DATA_BY_ORDER_DATE_GENERAL",
		Windowing:      WindowingDaily,
		PollInterval:   20 * time.Second,
		PollDeadline:   5 * time.Minute,
		ArtifactPrefix: "sp-api-all-orders-",
		ArtifactExt:    ".tsv",
	},
	"fba-inventory": {
		Name:           "fba-inventory",
		APIType:        "GET_FBA_MYI_UNSUPPRESSED_INVENTORY_DATA",
		Windowing:      WindowingSnapshot,
		PollInterval:   20 * time.Second,
		PollDeadline:   5 * time.Minute,
		ArtifactPrefix: "sp-api-fba-inventory-",
		ArtifactExt:    ".tsv",
	},
}

// Registry holds the enabled report types with configuration overrides
// applied.
type Registry struct {
	types map[string]TypeSpec
}

// NewRegistry builds a registry from the enabled type list. Unknown names
// are rejected so misconfiguration surfaces at startup rather than mid-run.
func NewRegistry(cfg *config.ReportsConfig) (*Registry, error) {
	types := make(map[string]TypeSpec, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		spec, ok := builtinTypes[name]
		if !ok {
			return nil, fmt.Errorf("unknown report type %q", name)
		}
		if override, ok := cfg.Overrides[name]; ok {
			if override.PollInterval > 0 {
				spec.PollInterval = override.PollInterval
			}
			if override.PollDeadline > 0 {
				spec.PollDeadline = override.PollDeadline
			}
		}
		types[name] = spec
	}
	return &Registry{types: types}, nil
}

// Lookup returns the spec for a report type name.
func (r *Registry) Lookup(name string) (TypeSpec, error) {
	spec, ok := r.types[name]
	if !ok {
		return TypeSpec{}, fmt.Errorf("unknown report type %q", name)
	}
	return spec, nil
}

// Names returns the enabled type names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
