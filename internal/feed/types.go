// Package feed is the attention and timeline aggregation engine. It fans
// out to the tenant's data sources, normalizes what arrives into uniform
// items, scores actionable findings, and assembles capped, deterministic
// payloads for the dashboard and activity feeds. The engine is read-only:
// it owns no records and performs no writes.
package feed

import "time"

// ActivityKind is the closed set of timeline fact kinds.
type ActivityKind string

const (
	KindJob             ActivityKind = "job"
	KindJobCompleted    ActivityKind = "job_completed"
	KindInvoice         ActivityKind = "invoice"
	KindInvoicePaid     ActivityKind = "invoice_paid"
	KindCertificate     ActivityKind = "certificate"
	KindQuote           ActivityKind = "quote"
	KindQuoteAccepted   ActivityKind = "quote_accepted"
	KindDealStageChange ActivityKind = "deal_stage_change"
	KindEnquiry         ActivityKind = "enquiry"
	KindAudit           ActivityKind = "audit"
)

// ActivityItem is a normalized, timeline-ordered fact. Items are derived
// views over other systems' records: constructed per request, never stored,
// never mutated.
type ActivityItem struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Kind         ActivityKind `json:"kind"`
	Title        string       `json:"title"`
	Subtitle     string       `json:"subtitle,omitempty"`
	Status       string       `json:"status"`
	AmountPence  *int64       `json:"amount,omitempty"`
	Currency     string       `json:"currency,omitempty"`
	Link         string       `json:"link,omitempty"`
	DocumentLink string       `json:"documentLink,omitempty"`
}

// FindingType is the closed detector catalogue. Extending it means adding a
// constant here and updating every switch over the type; the compiler-visible
// default cases reject anything else before it can reach ranking or
// rendering.
type FindingType string

const (
	FindingInvoiceOverdue   FindingType = "invoice_overdue"
	FindingJobNoInvoice     FindingType = "job_no_invoice"
	FindingMissingTimesheet FindingType = "missing_timesheet"
	FindingCertNotIssued    FindingType = "cert_not_issued"
	FindingOpenSnags        FindingType = "open_snags"
	FindingQuoteNoJob       FindingType = "quote_no_job"
)

// Finding is a detector's raw output: an actionable condition tied to one
// entity, scored but not yet rendered. EntityID is a raw identifier and must
// never reach a display field; Ref is the human-facing reference (invoice
// number, job reference, engineer name) and is the only identifier message
// builders accept.
type Finding struct {
	Type        FindingType
	EntityID    string
	Ref         string
	Urgency     int
	TriggeredAt time.Time
	Count       int
	Days        int
}

// ID is unique per (detector, entity) pair.
func (f Finding) ID() string {
	return string(f.Type) + "-" + f.EntityID
}

// AttentionItem is a rendered, ranked finding as served to the dashboard.
type AttentionItem struct {
	ID       string      `json:"id"`
	Type     FindingType `json:"type"`
	Icon     string      `json:"icon"`
	Message  string      `json:"message"`
	Age      string      `json:"age"`
	Urgency  int         `json:"urgency"`
	CTALabel string      `json:"ctaLabel"`
	CTAHref  string      `json:"ctaHref"`
}

// JobHealth is one row of the job health-flag view. All three flags are
// always present.
type JobHealth struct {
	HasInvoice          bool `json:"hasInvoice"`
	HasOpenSnags        bool `json:"hasOpenSnags"`
	HasMissingTimesheet bool `json:"hasMissingTimesheet"`
}

// EngineerStatus is one row of the engineer activity view.
type EngineerStatus struct {
	LastActive    *string `json:"lastActive"`
	TodayJobCount int     `json:"todayJobCount"`
}

// MapPin locates a job or quote on the dispatch map.
type MapPin struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Label  string  `json:"label"`
	Href   string  `json:"href"`
	Status string  `json:"status"`
}
