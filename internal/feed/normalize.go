package feed

import (
	"context"
	"fmt"
	"time"

	"fieldops/api/internal/store"

	"github.com/dustin/go-humanize"
)

// renderFindings turns scored findings into dashboard cards. Messages are
// built only from the finding's Ref and counters; raw entity identifiers
// appear in hrefs, never in display text. hrefPrefix is the caller's role
// namespace.
func renderFindings(findings []Finding, now time.Time, hrefPrefix string) []AttentionItem {
	items := make([]AttentionItem, 0, len(findings))
	for _, f := range findings {
		item := AttentionItem{
			ID:      f.ID(),
			Type:    f.Type,
			Urgency: f.Urgency,
			Age:     humanize.RelTime(f.TriggeredAt, now, "ago", "from now"),
		}
		switch f.Type {
		case FindingInvoiceOverdue:
			item.Icon = "invoice"
			if f.Days < 1 {
				item.Message = fmt.Sprintf("Invoice %s is less than a day overdue", f.Ref)
			} else {
				item.Message = fmt.Sprintf("Invoice %s is %s overdue", f.Ref, plural(f.Days, "day"))
			}
			item.CTALabel = "Chase payment"
			item.CTAHref = hrefPrefix + "/invoices/" + f.EntityID
		case FindingJobNoInvoice:
			item.Icon = "job"
			item.Message = fmt.Sprintf("Job %s completed %s ago with no invoice", f.Ref, plural(f.Days, "day"))
			item.CTALabel = "Raise invoice"
			item.CTAHref = hrefPrefix + "/jobs/" + f.EntityID
		case FindingMissingTimesheet:
			item.Icon = "timesheet"
			item.Message = fmt.Sprintf("%s has no timesheet for %s", f.Ref, f.TriggeredAt.Format("Mon 2 Jan"))
			item.CTALabel = "Review timesheets"
			item.CTAHref = hrefPrefix + "/timesheets"
		case FindingCertNotIssued:
			item.Icon = "certificate"
			item.Message = fmt.Sprintf("Certificate %s completed %s ago but not issued", f.Ref, plural(f.Days, "day"))
			item.CTALabel = "Issue certificate"
			item.CTAHref = hrefPrefix + "/certificates/" + f.EntityID
		case FindingOpenSnags:
			item.Icon = "snag"
			item.Message = fmt.Sprintf("Job %s has %s open", f.Ref, plural(f.Count, "snag"))
			item.CTALabel = "View snags"
			item.CTAHref = hrefPrefix + "/jobs/" + f.EntityID
		case FindingQuoteNoJob:
			item.Icon = "quote"
			item.Message = fmt.Sprintf("Quote %s accepted %s ago with no job booked", f.Ref, plural(f.Days, "day"))
			item.CTALabel = "Book job"
			item.CTAHref = hrefPrefix + "/quotes/" + f.EntityID
		default:
			continue
		}
		items = append(items, item)
	}
	return items
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func formatAmount(pence int64, currency string) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	amount := fmt.Sprintf("%s%s.%02d", sign, humanize.Comma(pence/100), pence%100)
	switch currency {
	case "GBP", "":
		return "£" + amount
	case "EUR":
		return "€" + amount
	case "USD":
		return "$" + amount
	default:
		return currency + " " + amount
	}
}

// activityFromSnapshot normalizes every record in the snapshot into timeline
// items. A record can yield more than one item when it carries more than one
// fact: an invoice that was issued and then paid is two events.
func (a *Aggregator) activityFromSnapshot(ctx context.Context, snap Snapshot, hrefPrefix string) []ActivityItem {
	items := make([]ActivityItem, 0)
	items = append(items, jobActivity(snap.Jobs, hrefPrefix)...)
	items = append(items, a.invoiceActivity(ctx, snap.Invoices, hrefPrefix)...)
	items = append(items, quoteActivity(snap.Quotes, hrefPrefix)...)
	items = append(items, a.certificateActivity(ctx, snap.Certificates, hrefPrefix)...)
	items = append(items, enquiryActivity(snap.Enquiries)...)
	items = append(items, dealActivity(snap.Deals)...)
	items = append(items, auditActivity(snap.Audit)...)
	return items
}

func jobActivity(jobs []store.Job, hrefPrefix string) []ActivityItem {
	items := make([]ActivityItem, 0, len(jobs))
	for _, job := range jobs {
		ts := job.CreatedAt
		if job.ScheduledAt != nil {
			ts = *job.ScheduledAt
		}
		items = append(items, ActivityItem{
			ID:        "job-" + job.ID,
			Timestamp: ts,
			Kind:      KindJob,
			Title:     "Job " + job.Reference,
			Subtitle:  job.Title,
			Status:    job.Status,
			Link:      hrefPrefix + "/jobs/" + job.ID,
		})
		if job.CompletedAt != nil {
			items = append(items, ActivityItem{
				ID:        "job-completed-" + job.ID,
				Timestamp: *job.CompletedAt,
				Kind:      KindJobCompleted,
				Title:     "Job " + job.Reference + " completed",
				Subtitle:  job.Title,
				Status:    job.Status,
				Link:      hrefPrefix + "/jobs/" + job.ID,
			})
		}
	}
	return items
}

func (a *Aggregator) invoiceActivity(ctx context.Context, invoices []store.Invoice, hrefPrefix string) []ActivityItem {
	items := make([]ActivityItem, 0, len(invoices))
	for _, inv := range invoices {
		if inv.IssuedAt == nil {
			continue
		}
		amount := inv.AmountPence
		issued := ActivityItem{
			ID:          "invoice-" + inv.ID,
			Timestamp:   *inv.IssuedAt,
			Kind:        KindInvoice,
			Title:       "Invoice " + inv.Number,
			Subtitle:    formatAmount(inv.AmountPence, inv.Currency),
			Status:      inv.Status,
			AmountPence: &amount,
			Currency:    inv.Currency,
			Link:        hrefPrefix + "/invoices/" + inv.ID,
		}
		if inv.DocumentKey != nil {
			issued.DocumentLink = a.docs.DocumentURL(ctx, *inv.DocumentKey)
		}
		items = append(items, issued)

		if inv.PaidAt != nil {
			paid := amount
			items = append(items, ActivityItem{
				ID:          "invoice-paid-" + inv.ID,
				Timestamp:   *inv.PaidAt,
				Kind:        KindInvoicePaid,
				Title:       "Invoice " + inv.Number + " paid",
				Subtitle:    formatAmount(inv.AmountPence, inv.Currency),
				Status:      inv.Status,
				AmountPence: &paid,
				Currency:    inv.Currency,
				Link:        hrefPrefix + "/invoices/" + inv.ID,
			})
		}
	}
	return items
}

func quoteActivity(quotes []store.Quote, hrefPrefix string) []ActivityItem {
	items := make([]ActivityItem, 0, len(quotes))
	for _, q := range quotes {
		if q.Status == "draft" {
			continue
		}
		amount := q.AmountPence
		items = append(items, ActivityItem{
			ID:          "quote-" + q.ID,
			Timestamp:   q.CreatedAt,
			Kind:        KindQuote,
			Title:       "Quote " + q.Reference,
			Subtitle:    formatAmount(q.AmountPence, q.Currency),
			Status:      q.Status,
			AmountPence: &amount,
			Currency:    q.Currency,
			Link:        hrefPrefix + "/quotes/" + q.ID,
		})
		if q.AcceptedAt != nil {
			accepted := amount
			items = append(items, ActivityItem{
				ID:          "quote-accepted-" + q.ID,
				Timestamp:   *q.AcceptedAt,
				Kind:        KindQuoteAccepted,
				Title:       "Quote " + q.Reference + " accepted",
				Subtitle:    formatAmount(q.AmountPence, q.Currency),
				Status:      q.Status,
				AmountPence: &accepted,
				Currency:    q.Currency,
				Link:        hrefPrefix + "/quotes/" + q.ID,
			})
		}
	}
	return items
}

func (a *Aggregator) certificateActivity(ctx context.Context, certs []store.Certificate, hrefPrefix string) []ActivityItem {
	items := make([]ActivityItem, 0, len(certs))
	for _, cert := range certs {
		var ts time.Time
		switch {
		case cert.IssuedAt != nil:
			ts = *cert.IssuedAt
		case cert.CompletedAt != nil:
			ts = *cert.CompletedAt
		default:
			continue
		}
		item := ActivityItem{
			ID:        "certificate-" + cert.ID,
			Timestamp: ts,
			Kind:      KindCertificate,
			Title:     "Certificate " + cert.Reference,
			Subtitle:  cert.Kind,
			Status:    cert.Status,
			Link:      hrefPrefix + "/certificates/" + cert.ID,
		}
		if cert.Status == "issued" && cert.DocumentKey != nil {
			item.DocumentLink = a.docs.DocumentURL(ctx, *cert.DocumentKey)
		}
		items = append(items, item)
	}
	return items
}

func enquiryActivity(enquiries []store.Enquiry) []ActivityItem {
	items := make([]ActivityItem, 0, len(enquiries))
	for _, e := range enquiries {
		items = append(items, ActivityItem{
			ID:        "enquiry-" + e.ID,
			Timestamp: e.CreatedAt,
			Kind:      KindEnquiry,
			Title:     "Enquiry from " + e.Name,
			Subtitle:  e.Source,
			Status:    e.Status,
		})
	}
	return items
}

func dealActivity(deals []store.Deal) []ActivityItem {
	items := make([]ActivityItem, 0, len(deals))
	for _, d := range deals {
		amount := d.AmountPence
		items = append(items, ActivityItem{
			ID:          "deal-" + d.ID,
			Timestamp:   d.StageChangedAt,
			Kind:        KindDealStageChange,
			Title:       "Deal " + d.Title + " moved to " + d.Stage,
			Subtitle:    formatAmount(d.AmountPence, d.Currency),
			Status:      d.Stage,
			AmountPence: &amount,
			Currency:    d.Currency,
		})
	}
	return items
}

func auditActivity(entries []store.AuditEntry) []ActivityItem {
	items := make([]ActivityItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, ActivityItem{
			ID:        fmt.Sprintf("audit-%d", e.ID),
			Timestamp: e.CreatedAt,
			Kind:      KindAudit,
			Title:     e.Summary,
			Subtitle:  e.ActorName,
			Status:    e.EventType,
		})
	}
	return items
}
