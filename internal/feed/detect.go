package feed

import (
	"time"

	"fieldops/api/internal/store"
)

// Detect runs the full detector catalogue over one snapshot. Detectors are
// pure: the same snapshot and clock always yield the same findings. A source
// that failed contributes an empty slice, so its detectors simply find
// nothing.
func Detect(snap Snapshot, now time.Time) []Finding {
	findings := make([]Finding, 0)
	findings = append(findings, detectInvoiceOverdue(snap.Invoices, now)...)
	findings = append(findings, detectJobNoInvoice(snap.Jobs, snap.Invoices, now)...)
	findings = append(findings, detectMissingTimesheet(snap.Jobs, snap.Timesheets, snap.Engineers, now)...)
	findings = append(findings, detectCertNotIssued(snap.Certificates, now)...)
	findings = append(findings, detectOpenSnags(snap.Jobs, now)...)
	findings = append(findings, detectQuoteNoJob(snap.Quotes, now)...)
	return dedupe(findings)
}

// dedupe keeps the highest-urgency finding per (detector, entity) pair.
func dedupe(findings []Finding) []Finding {
	best := make(map[string]int, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		id := f.ID()
		if i, seen := best[id]; seen {
			if f.Urgency > out[i].Urgency {
				out[i] = f
			}
			continue
		}
		best[id] = len(out)
		out = append(out, f)
	}
	return out
}

func daysSince(t, now time.Time) int {
	if !t.Before(now) {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}

func detectInvoiceOverdue(invoices []store.Invoice, now time.Time) []Finding {
	findings := make([]Finding, 0)
	for _, inv := range invoices {
		if inv.Status != "issued" || inv.DueAt == nil || !inv.DueAt.Before(now) {
			continue
		}
		days := daysSince(*inv.DueAt, now)
		findings = append(findings, Finding{
			Type:        FindingInvoiceOverdue,
			EntityID:    inv.ID,
			Ref:         inv.Number,
			Urgency:     clampUrgency(invoiceOverdueBase + agedBonus(days, invoiceOverduePerDay, invoiceOverdueMaxBonus)),
			TriggeredAt: *inv.DueAt,
			Days:        days,
		})
	}
	return findings
}

func detectJobNoInvoice(jobs []store.Job, invoices []store.Invoice, now time.Time) []Finding {
	invoiced := make(map[string]bool, len(invoices))
	for _, inv := range invoices {
		if inv.JobID != nil && inv.Status != "void" {
			invoiced[*inv.JobID] = true
		}
	}

	findings := make([]Finding, 0)
	for _, job := range jobs {
		if job.Status != "completed" || job.CompletedAt == nil || invoiced[job.ID] {
			continue
		}
		days := daysSince(*job.CompletedAt, now)
		if days <= jobNoInvoiceGraceDays {
			continue
		}
		findings = append(findings, Finding{
			Type:        FindingJobNoInvoice,
			EntityID:    job.ID,
			Ref:         job.Reference,
			Urgency:     clampUrgency(jobNoInvoiceBase + agedBonus(days-jobNoInvoiceGraceDays, jobNoInvoicePerDay, jobNoInvoiceMaxBonus)),
			TriggeredAt: *job.CompletedAt,
			Days:        days,
		})
	}
	return findings
}

// detectMissingTimesheet flags each past day inside the lookback window on
// which an engineer worked a job but filed no timesheet entry. Today is
// excluded: the day is not over.
func detectMissingTimesheet(jobs []store.Job, timesheets []store.TimesheetEntry, engineers []store.User, now time.Time) []Finding {
	names := make(map[string]string, len(engineers))
	for _, e := range engineers {
		names[e.ID] = e.DisplayName
	}

	filed := make(map[string]bool, len(timesheets))
	for _, ts := range timesheets {
		filed[ts.EngineerID+"|"+ts.WorkDate.Format("2006-01-02")] = true
	}

	today := now.Truncate(24 * time.Hour)
	cutoff := today.AddDate(0, 0, -missingTimesheetLookbackDays)

	findings := make([]Finding, 0)
	seen := make(map[string]bool)
	for _, job := range jobs {
		if job.EngineerID == nil || job.ScheduledAt == nil {
			continue
		}
		day := job.ScheduledAt.Truncate(24 * time.Hour)
		if day.Before(cutoff) || !day.Before(today) {
			continue
		}
		key := *job.EngineerID + "|" + day.Format("2006-01-02")
		if filed[key] || seen[key] {
			continue
		}
		seen[key] = true

		name := names[*job.EngineerID]
		if name == "" {
			continue
		}
		findings = append(findings, Finding{
			Type:        FindingMissingTimesheet,
			EntityID:    *job.EngineerID + "-" + day.Format("2006-01-02"),
			Ref:         name,
			Urgency:     clampUrgency(missingTimesheetBase),
			TriggeredAt: day,
			Days:        daysSince(day, now),
		})
	}
	return findings
}

func detectCertNotIssued(certs []store.Certificate, now time.Time) []Finding {
	findings := make([]Finding, 0)
	for _, cert := range certs {
		if cert.Status != "completed" || cert.CompletedAt == nil {
			continue
		}
		days := daysSince(*cert.CompletedAt, now)
		findings = append(findings, Finding{
			Type:        FindingCertNotIssued,
			EntityID:    cert.ID,
			Ref:         cert.Reference,
			Urgency:     clampUrgency(certNotIssuedBase + agedBonus(days, certNotIssuedPerDay, certNotIssuedMaxBonus)),
			TriggeredAt: *cert.CompletedAt,
			Days:        days,
		})
	}
	return findings
}

func detectOpenSnags(jobs []store.Job, now time.Time) []Finding {
	findings := make([]Finding, 0)
	for _, job := range jobs {
		if job.OpenSnagCount <= 0 || job.Status == "cancelled" {
			continue
		}
		triggered := job.CreatedAt
		if job.CompletedAt != nil {
			triggered = *job.CompletedAt
		}
		bonus := job.OpenSnagCount * openSnagsPerItem
		if bonus > openSnagsMaxBonus {
			bonus = openSnagsMaxBonus
		}
		findings = append(findings, Finding{
			Type:        FindingOpenSnags,
			EntityID:    job.ID,
			Ref:         job.Reference,
			Urgency:     clampUrgency(openSnagsBase + bonus),
			TriggeredAt: triggered,
			Count:       job.OpenSnagCount,
			Days:        daysSince(triggered, now),
		})
	}
	return findings
}

func detectQuoteNoJob(quotes []store.Quote, now time.Time) []Finding {
	findings := make([]Finding, 0)
	for _, q := range quotes {
		if q.Status != "accepted" || q.AcceptedAt == nil || q.JobID != nil {
			continue
		}
		days := daysSince(*q.AcceptedAt, now)
		if days <= quoteNoJobGraceDays {
			continue
		}
		findings = append(findings, Finding{
			Type:        FindingQuoteNoJob,
			EntityID:    q.ID,
			Ref:         q.Reference,
			Urgency:     clampUrgency(quoteNoJobBase + agedBonus(days-quoteNoJobGraceDays, quoteNoJobPerDay, quoteNoJobMaxBonus)),
			TriggeredAt: *q.AcceptedAt,
			Days:        days,
		})
	}
	return findings
}
