package feed

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"fieldops/api/internal/store"
	"golang.org/x/sync/errgroup"
)

// Store is the query surface the engine fans out to. Every method is scoped
// to one tenant and caps its own row count; implementations must be
// side-effect-free.
type Store interface {
	JobsByTenant(ctx context.Context, tenantID string, limit int) ([]store.Job, error)
	InvoicesByTenant(ctx context.Context, tenantID string, limit int) ([]store.Invoice, error)
	QuotesByTenant(ctx context.Context, tenantID string, limit int) ([]store.Quote, error)
	CertificatesByTenant(ctx context.Context, tenantID string, limit int) ([]store.Certificate, error)
	EnquiriesByTenant(ctx context.Context, tenantID string, limit int) ([]store.Enquiry, error)
	DealsByTenant(ctx context.Context, tenantID string, limit int) ([]store.Deal, error)
	TimesheetsByTenant(ctx context.Context, tenantID string, since time.Time, limit int) ([]store.TimesheetEntry, error)
	AuditByTenant(ctx context.Context, tenantID string, limit int) ([]store.AuditEntry, error)
	EngineersByTenant(ctx context.Context, tenantID string) ([]store.User, error)

	GetJob(ctx context.Context, tenantID, jobID string) (store.Job, error)
	InvoicesForJob(ctx context.Context, tenantID, jobID string, limit int) ([]store.Invoice, error)
	QuotesForJob(ctx context.Context, tenantID, jobID string, limit int) ([]store.Quote, error)
	CertificatesForJob(ctx context.Context, tenantID, jobID string, limit int) ([]store.Certificate, error)
	AuditForEntity(ctx context.Context, tenantID, entityID string, limit int) ([]store.AuditEntry, error)

	JobsForClient(ctx context.Context, tenantID, clientID string, limit int) ([]store.Job, error)
	InvoicesForClient(ctx context.Context, tenantID, clientID string, limit int) ([]store.Invoice, error)
	QuotesForClient(ctx context.Context, tenantID, clientID string, limit int) ([]store.Quote, error)
	CertificatesForClient(ctx context.Context, tenantID, clientID string, limit int) ([]store.Certificate, error)
}

// Snapshot is the joined result of one fan-out: whatever each source
// returned, plus the names of sources that failed or timed out. A partial
// snapshot is contractually equivalent to a complete one.
type Snapshot struct {
	Jobs         []store.Job
	Invoices     []store.Invoice
	Quotes       []store.Quote
	Certificates []store.Certificate
	Enquiries    []store.Enquiry
	Deals        []store.Deal
	Timesheets   []store.TimesheetEntry
	Audit        []store.AuditEntry
	Engineers    []store.User

	Failed  []string
	queried int
}

// AllFailed reports whether every source in the fan-out failed, which the
// aggregator treats as the data store being unavailable rather than a
// degraded-but-valid fetch.
func (s Snapshot) AllFailed() bool {
	return s.queried > 0 && len(s.Failed) == s.queried
}

func (s *Snapshot) collect(ctx context.Context, a *Aggregator, sources []source) {
	s.queried = len(sources)
	s.Failed = a.runSources(ctx, sources)
}

type source struct {
	name  string
	fetch func(ctx context.Context) error
}

// runSources issues every source concurrently, each under its own timeout,
// and joins before returning. A failed source is logged and recorded, never
// propagated: one slow or broken source must not sink the request.
func (a *Aggregator) runSources(ctx context.Context, sources []source) []string {
	var mu sync.Mutex
	failed := make([]string, 0)

	var g errgroup.Group
	for _, src := range sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
			defer cancel()
			if err := src.fetch(sctx); err != nil {
				log.Printf("feed: source %s failed: %v", src.name, err)
				mu.Lock()
				failed = append(failed, src.name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(failed)
	return failed
}

// attentionSnapshot fetches the sources the detector catalogue needs.
func (a *Aggregator) attentionSnapshot(ctx context.Context, tenantID string) Snapshot {
	var snap Snapshot
	since := a.now().AddDate(0, 0, -missingTimesheetLookbackDays)

	snap.collect(ctx, a, []source{
		{"jobs", func(ctx context.Context) error {
			var err error
			snap.Jobs, err = a.store.JobsByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"invoices", func(ctx context.Context) error {
			var err error
			snap.Invoices, err = a.store.InvoicesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"quotes", func(ctx context.Context) error {
			var err error
			snap.Quotes, err = a.store.QuotesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"certificates", func(ctx context.Context) error {
			var err error
			snap.Certificates, err = a.store.CertificatesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"timesheets", func(ctx context.Context) error {
			var err error
			snap.Timesheets, err = a.store.TimesheetsByTenant(ctx, tenantID, since, sourceRowCap)
			return err
		}},
		{"engineers", func(ctx context.Context) error {
			var err error
			snap.Engineers, err = a.store.EngineersByTenant(ctx, tenantID)
			return err
		}},
	})
	return snap
}

// tenantSnapshot fetches every activity source for the ops recent-activity
// feed.
func (a *Aggregator) tenantSnapshot(ctx context.Context, tenantID string) Snapshot {
	var snap Snapshot

	snap.collect(ctx, a, []source{
		{"jobs", func(ctx context.Context) error {
			var err error
			snap.Jobs, err = a.store.JobsByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"invoices", func(ctx context.Context) error {
			var err error
			snap.Invoices, err = a.store.InvoicesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"quotes", func(ctx context.Context) error {
			var err error
			snap.Quotes, err = a.store.QuotesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"certificates", func(ctx context.Context) error {
			var err error
			snap.Certificates, err = a.store.CertificatesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"enquiries", func(ctx context.Context) error {
			var err error
			snap.Enquiries, err = a.store.EnquiriesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"deals", func(ctx context.Context) error {
			var err error
			snap.Deals, err = a.store.DealsByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"audit", func(ctx context.Context) error {
			var err error
			snap.Audit, err = a.store.AuditByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
	})
	return snap
}

// clientSnapshot fetches the customer-visible sources for one client.
func (a *Aggregator) clientSnapshot(ctx context.Context, tenantID, clientID string) Snapshot {
	var snap Snapshot

	snap.collect(ctx, a, []source{
		{"jobs", func(ctx context.Context) error {
			var err error
			snap.Jobs, err = a.store.JobsForClient(ctx, tenantID, clientID, sourceRowCap)
			return err
		}},
		{"invoices", func(ctx context.Context) error {
			var err error
			snap.Invoices, err = a.store.InvoicesForClient(ctx, tenantID, clientID, sourceRowCap)
			return err
		}},
		{"quotes", func(ctx context.Context) error {
			var err error
			snap.Quotes, err = a.store.QuotesForClient(ctx, tenantID, clientID, sourceRowCap)
			return err
		}},
		{"certificates", func(ctx context.Context) error {
			var err error
			snap.Certificates, err = a.store.CertificatesForClient(ctx, tenantID, clientID, sourceRowCap)
			return err
		}},
	})
	return snap
}

// jobSnapshot fetches the records attached to one job for the mini timeline.
// The job row itself is fetched by the caller first: it anchors the scope
// and its absence is a not-found, not a degraded fetch.
func (a *Aggregator) jobSnapshot(ctx context.Context, tenantID, jobID string) Snapshot {
	var snap Snapshot

	snap.collect(ctx, a, []source{
		{"invoices", func(ctx context.Context) error {
			var err error
			snap.Invoices, err = a.store.InvoicesForJob(ctx, tenantID, jobID, sourceRowCap)
			return err
		}},
		{"quotes", func(ctx context.Context) error {
			var err error
			snap.Quotes, err = a.store.QuotesForJob(ctx, tenantID, jobID, sourceRowCap)
			return err
		}},
		{"certificates", func(ctx context.Context) error {
			var err error
			snap.Certificates, err = a.store.CertificatesForJob(ctx, tenantID, jobID, sourceRowCap)
			return err
		}},
		{"audit", func(ctx context.Context) error {
			var err error
			snap.Audit, err = a.store.AuditForEntity(ctx, tenantID, jobID, sourceRowCap)
			return err
		}},
	})
	return snap
}

// healthSnapshot fetches what the job health-flag view needs.
func (a *Aggregator) healthSnapshot(ctx context.Context, tenantID string) Snapshot {
	var snap Snapshot
	since := a.now().AddDate(0, 0, -missingTimesheetLookbackDays)

	snap.collect(ctx, a, []source{
		{"jobs", func(ctx context.Context) error {
			var err error
			snap.Jobs, err = a.store.JobsByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"invoices", func(ctx context.Context) error {
			var err error
			snap.Invoices, err = a.store.InvoicesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"timesheets", func(ctx context.Context) error {
			var err error
			snap.Timesheets, err = a.store.TimesheetsByTenant(ctx, tenantID, since, sourceRowCap)
			return err
		}},
	})
	return snap
}

// engineerSnapshot fetches what the engineer activity view needs.
func (a *Aggregator) engineerSnapshot(ctx context.Context, tenantID string) Snapshot {
	var snap Snapshot
	since := a.now().AddDate(0, 0, -missingTimesheetLookbackDays)

	snap.collect(ctx, a, []source{
		{"engineers", func(ctx context.Context) error {
			var err error
			snap.Engineers, err = a.store.EngineersByTenant(ctx, tenantID)
			return err
		}},
		{"jobs", func(ctx context.Context) error {
			var err error
			snap.Jobs, err = a.store.JobsByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"timesheets", func(ctx context.Context) error {
			var err error
			snap.Timesheets, err = a.store.TimesheetsByTenant(ctx, tenantID, since, sourceRowCap)
			return err
		}},
	})
	return snap
}

// pinSnapshot fetches the geocoded sources for the dispatch map.
func (a *Aggregator) pinSnapshot(ctx context.Context, tenantID string) Snapshot {
	var snap Snapshot

	snap.collect(ctx, a, []source{
		{"jobs", func(ctx context.Context) error {
			var err error
			snap.Jobs, err = a.store.JobsByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
		{"quotes", func(ctx context.Context) error {
			var err error
			snap.Quotes, err = a.store.QuotesByTenant(ctx, tenantID, sourceRowCap)
			return err
		}},
	})
	return snap
}
