package feed

import (
	"testing"
	"time"

	"fieldops/api/internal/store"
)

var detectNow = time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }
func sp(s string) *string       { return &s }

func findingsOf(t *testing.T, findings []Finding, ft FindingType) []Finding {
	t.Helper()
	out := make([]Finding, 0)
	for _, f := range findings {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

func TestDetectInvoiceOverdue(t *testing.T) {
	snap := Snapshot{Invoices: []store.Invoice{
		{ID: "inv-1", Number: "INV-2041", Status: "issued", DueAt: tp(detectNow.AddDate(0, 0, -12))},
		{ID: "inv-2", Number: "INV-2042", Status: "issued", DueAt: tp(detectNow.AddDate(0, 0, -2))},
		{ID: "inv-3", Number: "INV-2043", Status: "paid", DueAt: tp(detectNow.AddDate(0, 0, -30))},
		{ID: "inv-4", Number: "INV-2044", Status: "issued", DueAt: tp(detectNow.AddDate(0, 0, 5))},
		{ID: "inv-5", Number: "INV-2045", Status: "issued"},
	}}

	got := findingsOf(t, Detect(snap, detectNow), FindingInvoiceOverdue)
	if len(got) != 2 {
		t.Fatalf("expected 2 overdue findings, got %d", len(got))
	}
	var older, newer Finding
	for _, f := range got {
		switch f.EntityID {
		case "inv-1":
			older = f
		case "inv-2":
			newer = f
		default:
			t.Fatalf("unexpected finding for %s", f.EntityID)
		}
	}
	if older.Urgency <= newer.Urgency {
		t.Errorf("12-day overdue (%d) should outrank 2-day overdue (%d)", older.Urgency, newer.Urgency)
	}
	if older.Days != 12 || newer.Days != 2 {
		t.Errorf("unexpected day counts: %d, %d", older.Days, newer.Days)
	}
}

func TestDetectJobNoInvoiceRespectsGrace(t *testing.T) {
	snap := Snapshot{
		Jobs: []store.Job{
			{ID: "job-1", Reference: "JB-1042", Status: "completed", CompletedAt: tp(detectNow.AddDate(0, 0, -6))},
			{ID: "job-2", Reference: "JB-1043", Status: "completed", CompletedAt: tp(detectNow.AddDate(0, 0, -2))},
			{ID: "job-3", Reference: "JB-1044", Status: "completed", CompletedAt: tp(detectNow.AddDate(0, 0, -10))},
			{ID: "job-4", Reference: "JB-1045", Status: "in_progress"},
		},
		Invoices: []store.Invoice{
			{ID: "inv-1", Status: "issued", JobID: sp("job-3")},
		},
	}

	got := findingsOf(t, Detect(snap, detectNow), FindingJobNoInvoice)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(got))
	}
	if got[0].EntityID != "job-1" {
		t.Errorf("expected job-1, got %s", got[0].EntityID)
	}
	if got[0].Ref != "JB-1042" {
		t.Errorf("expected reference JB-1042, got %s", got[0].Ref)
	}
}

func TestDetectQuoteNoJob(t *testing.T) {
	snap := Snapshot{Quotes: []store.Quote{
		{ID: "q-1", Reference: "QT-3011", Status: "accepted", AcceptedAt: tp(detectNow.AddDate(0, 0, -14))},
		{ID: "q-2", Reference: "QT-3012", Status: "accepted", AcceptedAt: tp(detectNow.AddDate(0, 0, -3))},
		{ID: "q-3", Reference: "QT-3013", Status: "accepted", AcceptedAt: tp(detectNow.AddDate(0, 0, -20)), JobID: sp("job-9")},
		{ID: "q-4", Reference: "QT-3014", Status: "sent"},
	}}

	got := findingsOf(t, Detect(snap, detectNow), FindingQuoteNoJob)
	if len(got) != 1 || got[0].EntityID != "q-1" {
		t.Fatalf("expected only q-1 past the grace window, got %+v", got)
	}
}

func TestDetectCertNotIssued(t *testing.T) {
	snap := Snapshot{Certificates: []store.Certificate{
		{ID: "c-1", Reference: "CERT-118", Kind: "EICR", Status: "completed", CompletedAt: tp(detectNow.AddDate(0, 0, -4))},
		{ID: "c-2", Reference: "CERT-119", Kind: "EICR", Status: "issued", CompletedAt: tp(detectNow.AddDate(0, 0, -8)), IssuedAt: tp(detectNow.AddDate(0, 0, -7))},
		{ID: "c-3", Reference: "CERT-120", Kind: "Gas Safety", Status: "draft"},
	}}

	got := findingsOf(t, Detect(snap, detectNow), FindingCertNotIssued)
	if len(got) != 1 || got[0].EntityID != "c-1" {
		t.Fatalf("expected only the completed-unissued certificate, got %+v", got)
	}
}

func TestDetectOpenSnagsScalesWithCount(t *testing.T) {
	snap := Snapshot{Jobs: []store.Job{
		{ID: "job-1", Reference: "JB-1042", Status: "completed", OpenSnagCount: 1, CreatedAt: detectNow.AddDate(0, 0, -5)},
		{ID: "job-2", Reference: "JB-1043", Status: "completed", OpenSnagCount: 4, CreatedAt: detectNow.AddDate(0, 0, -5)},
		{ID: "job-3", Reference: "JB-1044", Status: "cancelled", OpenSnagCount: 9},
	}}

	got := findingsOf(t, Detect(snap, detectNow), FindingOpenSnags)
	if len(got) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(got))
	}
	var one, four Finding
	for _, f := range got {
		if f.Count == 1 {
			one = f
		} else {
			four = f
		}
	}
	if four.Urgency <= one.Urgency {
		t.Errorf("4 snags (%d) should outrank 1 snag (%d)", four.Urgency, one.Urgency)
	}
}

func TestDetectMissingTimesheet(t *testing.T) {
	yesterday := detectNow.AddDate(0, 0, -1)
	twoDaysAgo := detectNow.AddDate(0, 0, -2)
	snap := Snapshot{
		Engineers: []store.User{
			{ID: "eng-1", DisplayName: "Sam Archer"},
			{ID: "eng-2", DisplayName: "Priya Nair"},
		},
		Jobs: []store.Job{
			{ID: "job-1", Status: "completed", EngineerID: sp("eng-1"), ScheduledAt: tp(yesterday)},
			{ID: "job-2", Status: "completed", EngineerID: sp("eng-2"), ScheduledAt: tp(twoDaysAgo)},
			{ID: "job-3", Status: "scheduled", EngineerID: sp("eng-1"), ScheduledAt: tp(detectNow)},
		},
		Timesheets: []store.TimesheetEntry{
			{EngineerID: "eng-2", WorkDate: twoDaysAgo.Truncate(24 * time.Hour), Minutes: 480},
		},
	}

	got := findingsOf(t, Detect(snap, detectNow), FindingMissingTimesheet)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding, got %d: %+v", len(got), got)
	}
	if got[0].Ref != "Sam Archer" {
		t.Errorf("expected the engineer's display name, got %q", got[0].Ref)
	}
	if got[0].Urgency != missingTimesheetBase {
		t.Errorf("missing timesheet urgency is flat, got %d", got[0].Urgency)
	}
}

func TestUrgencyStaysInRange(t *testing.T) {
	snap := Snapshot{
		Invoices: []store.Invoice{
			{ID: "inv-1", Number: "INV-1", Status: "issued", DueAt: tp(detectNow.AddDate(-3, 0, 0))},
		},
		Jobs: []store.Job{
			{ID: "job-1", Reference: "JB-1", Status: "completed", OpenSnagCount: 500, CompletedAt: tp(detectNow.AddDate(-1, 0, 0))},
		},
	}

	for _, f := range Detect(snap, detectNow) {
		if f.Urgency < 0 || f.Urgency > maxUrgency {
			t.Errorf("%s urgency %d outside [0, %d]", f.ID(), f.Urgency, maxUrgency)
		}
	}
}

func TestDedupeKeepsHighestUrgency(t *testing.T) {
	in := []Finding{
		{Type: FindingOpenSnags, EntityID: "job-1", Urgency: 300},
		{Type: FindingOpenSnags, EntityID: "job-1", Urgency: 450},
		{Type: FindingInvoiceOverdue, EntityID: "inv-1", Urgency: 500},
	}
	out := dedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(out))
	}
	for _, f := range out {
		if f.EntityID == "job-1" && f.Urgency != 450 {
			t.Errorf("expected the higher-urgency duplicate to win, got %d", f.Urgency)
		}
	}
}
