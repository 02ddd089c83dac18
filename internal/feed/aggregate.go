package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"fieldops/api/internal/cache"
	"fieldops/api/internal/docstore"
	"fieldops/api/internal/store"
)

var (
	// ErrUnavailable means every source in the fan-out failed: there is no
	// data to degrade to.
	ErrUnavailable = errors.New("feed: all sources unavailable")

	// ErrNotFound means the scope anchor (the requested entity) does not
	// exist in the tenant.
	ErrNotFound = errors.New("feed: entity not found")
)

// Aggregator assembles the attention and timeline views. Every public method
// returns the marshaled payload bytes so that cache hits and fresh builds
// serve identical responses.
type Aggregator struct {
	store         Store
	cache         cache.Cache
	docs          docstore.Resolver
	cacheTTL      time.Duration
	sourceTimeout time.Duration
	now           func() time.Time
}

func New(st Store, c cache.Cache, docs docstore.Resolver, cacheTTL, sourceTimeout time.Duration) *Aggregator {
	if c == nil {
		c = cache.Noop{}
	}
	if docs == nil {
		docs = docstore.Noop{}
	}
	return &Aggregator{
		store:         st,
		cache:         c,
		docs:          docs,
		cacheTTL:      cacheTTL,
		sourceTimeout: sourceTimeout,
		now:           time.Now,
	}
}

// cached serves the key from cache when possible, otherwise builds the
// payload and stores it. Build errors are never cached.
func (a *Aggregator) cached(ctx context.Context, key string, build func() ([]byte, error)) ([]byte, error) {
	if payload, ok := a.cache.Get(ctx, key); ok {
		return payload, nil
	}
	payload, err := build()
	if err != nil {
		return nil, err
	}
	a.cache.Set(ctx, key, payload, a.cacheTTL)
	return payload, nil
}

// Attention builds the ranked needs-attention list for the tenant dashboard.
// hrefPrefix is the caller's role namespace and is part of the cache key:
// two roles must never share rendered links.
func (a *Aggregator) Attention(ctx context.Context, tenantID, hrefPrefix string) ([]byte, error) {
	key := cache.Key(tenantID, "attention", hrefPrefix)
	return a.cached(ctx, key, func() ([]byte, error) {
		snap := a.attentionSnapshot(ctx, tenantID)
		if snap.AllFailed() {
			return nil, ErrUnavailable
		}
		now := a.now()
		findings := Detect(snap, now)
		rankFindings(findings)
		findings = capFindings(findings, attentionCap)
		return json.Marshal(renderFindings(findings, now, hrefPrefix))
	})
}

// EntityTimeline builds the mini activity feed for one job. The job row
// anchors the scope: if it does not exist the view is a not-found, however
// the other sources fared.
func (a *Aggregator) EntityTimeline(ctx context.Context, tenantID, entityID, hrefPrefix string) ([]byte, error) {
	key := cache.Key(tenantID, "timeline", entityID, hrefPrefix)
	return a.cached(ctx, key, func() ([]byte, error) {
		job, err := a.store.GetJob(ctx, tenantID, entityID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, ErrUnavailable
		}

		snap := a.jobSnapshot(ctx, tenantID, entityID)
		snap.Jobs = []store.Job{job}
		items := a.activityFromSnapshot(ctx, snap, hrefPrefix)
		sortActivity(items)
		return json.Marshal(capActivity(items, entityTimelineCap))
	})
}

// PortalTimeline builds the customer-facing feed scoped to one client.
func (a *Aggregator) PortalTimeline(ctx context.Context, tenantID, clientID string) ([]byte, error) {
	key := cache.Key(tenantID, "portal", clientID)
	return a.cached(ctx, key, func() ([]byte, error) {
		snap := a.clientSnapshot(ctx, tenantID, clientID)
		if snap.AllFailed() {
			return nil, ErrUnavailable
		}
		items := a.activityFromSnapshot(ctx, snap, "/portal")
		sortActivity(items)
		return json.Marshal(capActivity(items, fullFeedCap))
	})
}

// OpsActivity builds the office-wide recent activity feed across every
// source, enquiries, deals and the audit log included.
func (a *Aggregator) OpsActivity(ctx context.Context, tenantID, hrefPrefix string) ([]byte, error) {
	key := cache.Key(tenantID, "activity", hrefPrefix)
	return a.cached(ctx, key, func() ([]byte, error) {
		snap := a.tenantSnapshot(ctx, tenantID)
		if snap.AllFailed() {
			return nil, ErrUnavailable
		}
		items := a.activityFromSnapshot(ctx, snap, hrefPrefix)
		sortActivity(items)
		return json.Marshal(capActivity(items, fullFeedCap))
	})
}

// HealthFlags builds the per-job health flags keyed by job ID. Every job
// carries all three flags; absence of a problem is an explicit false.
func (a *Aggregator) HealthFlags(ctx context.Context, tenantID string) ([]byte, error) {
	key := cache.Key(tenantID, "health")
	return a.cached(ctx, key, func() ([]byte, error) {
		snap := a.healthSnapshot(ctx, tenantID)
		if snap.AllFailed() {
			return nil, ErrUnavailable
		}

		invoiced := make(map[string]bool, len(snap.Invoices))
		for _, inv := range snap.Invoices {
			if inv.JobID != nil && inv.Status != "void" {
				invoiced[*inv.JobID] = true
			}
		}
		filed := make(map[string]bool, len(snap.Timesheets))
		for _, ts := range snap.Timesheets {
			filed[ts.EngineerID+"|"+ts.WorkDate.Format("2006-01-02")] = true
		}

		now := a.now()
		today := now.Truncate(24 * time.Hour)
		cutoff := today.AddDate(0, 0, -missingTimesheetLookbackDays)

		flags := make(map[string]JobHealth, len(snap.Jobs))
		for _, job := range snap.Jobs {
			h := JobHealth{
				HasInvoice:   invoiced[job.ID],
				HasOpenSnags: job.OpenSnagCount > 0,
			}
			if job.EngineerID != nil && job.ScheduledAt != nil {
				day := job.ScheduledAt.Truncate(24 * time.Hour)
				if !day.Before(cutoff) && day.Before(today) {
					h.HasMissingTimesheet = !filed[*job.EngineerID+"|"+day.Format("2006-01-02")]
				}
			}
			flags[job.ID] = h
		}
		return json.Marshal(flags)
	})
}

// EngineerActivity builds the per-engineer status board keyed by engineer ID.
func (a *Aggregator) EngineerActivity(ctx context.Context, tenantID string) ([]byte, error) {
	key := cache.Key(tenantID, "engineers")
	return a.cached(ctx, key, func() ([]byte, error) {
		snap := a.engineerSnapshot(ctx, tenantID)
		if snap.AllFailed() {
			return nil, ErrUnavailable
		}

		now := a.now()
		today := now.Truncate(24 * time.Hour)

		lastActive := make(map[string]time.Time, len(snap.Engineers))
		for _, ts := range snap.Timesheets {
			if ts.WorkDate.After(lastActive[ts.EngineerID]) {
				lastActive[ts.EngineerID] = ts.WorkDate
			}
		}
		todayJobs := make(map[string]int, len(snap.Engineers))
		for _, job := range snap.Jobs {
			if job.EngineerID == nil || job.ScheduledAt == nil {
				continue
			}
			if job.ScheduledAt.Truncate(24 * time.Hour).Equal(today) {
				todayJobs[*job.EngineerID]++
			}
		}

		board := make(map[string]EngineerStatus, len(snap.Engineers))
		for _, eng := range snap.Engineers {
			status := EngineerStatus{TodayJobCount: todayJobs[eng.ID]}
			if last, ok := lastActive[eng.ID]; ok {
				iso := last.Format(time.RFC3339)
				status.LastActive = &iso
			}
			board[eng.ID] = status
		}
		return json.Marshal(board)
	})
}

// MapPins builds the dispatch map: every geocoded job and accepted-but-unbooked
// quote in the tenant.
func (a *Aggregator) MapPins(ctx context.Context, tenantID, hrefPrefix string) ([]byte, error) {
	key := cache.Key(tenantID, "pins", hrefPrefix)
	return a.cached(ctx, key, func() ([]byte, error) {
		snap := a.pinSnapshot(ctx, tenantID)
		if snap.AllFailed() {
			return nil, ErrUnavailable
		}

		pins := make([]MapPin, 0, len(snap.Jobs)+len(snap.Quotes))
		for _, job := range snap.Jobs {
			if job.Lat == nil || job.Lng == nil || job.Status == "cancelled" {
				continue
			}
			if !validCoords(*job.Lat, *job.Lng) {
				continue
			}
			pins = append(pins, MapPin{
				ID:     "job-" + job.ID,
				Type:   "job",
				Lat:    *job.Lat,
				Lng:    *job.Lng,
				Label:  job.Reference,
				Href:   hrefPrefix + "/jobs/" + job.ID,
				Status: job.Status,
			})
		}
		for _, q := range snap.Quotes {
			if q.Lat == nil || q.Lng == nil || q.Status != "accepted" || q.JobID != nil {
				continue
			}
			if !validCoords(*q.Lat, *q.Lng) {
				continue
			}
			pins = append(pins, MapPin{
				ID:     "quote-" + q.ID,
				Type:   "quote",
				Lat:    *q.Lat,
				Lng:    *q.Lng,
				Label:  q.Reference,
				Href:   hrefPrefix + "/quotes/" + q.ID,
				Status: q.Status,
			})
		}
		sortPins(pins)
		return json.Marshal(pins)
	})
}

// validCoords rejects out-of-range geocodes so a bad upstream row cannot put
// a pin off the map.
func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
