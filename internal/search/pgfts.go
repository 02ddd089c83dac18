package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

var _ Searcher = (*PgFTS)(nil)

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across jobs, invoices, quotes, and
// clients using plainto_tsquery and ts_rank. $1 is the query text, $2 the
// tenant; both apply to every sub-query.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.TenantID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.TenantID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultJob {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'job'::text AS type, j.id, j.reference AS title,
				j.title AS snippet, j.status,
				ts_rank(j.fts, %s) AS rank
			FROM jobs j
			WHERE j.tenant_id = $2 AND j.fts @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultInvoice {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'invoice'::text AS type, i.id, i.number AS title,
				''::text AS snippet, i.status,
				ts_rank(i.fts, %s) AS rank
			FROM invoices i
			WHERE i.tenant_id = $2 AND i.fts @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultQuote {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'quote'::text AS type, qt.id, qt.reference AS title,
				qt.title AS snippet, qt.status,
				ts_rank(qt.fts, %s) AS rank
			FROM quotes qt
			WHERE qt.tenant_id = $2 AND qt.fts @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultClient {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'client'::text AS type, c.id, c.name AS title,
				''::text AS snippet, ''::text AS status,
				ts_rank(c.fts, %s) AS rank
			FROM clients c
			WHERE c.tenant_id = $2 AND c.fts @@ %s`, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record in the tenant for full
// reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]JobRecord, []InvoiceRecord, []QuoteRecord, []ClientRecord, error) {
	jobRows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, reference, title, status
		FROM jobs
	`)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load jobs: %w", err)
	}
	defer jobRows.Close()

	jobs := make([]JobRecord, 0)
	for jobRows.Next() {
		var j JobRecord
		if err := jobRows.Scan(&j.ID, &j.TenantID, &j.Reference, &j.Title, &j.Status); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := jobRows.Err(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("iterate jobs: %w", err)
	}

	invoiceRows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, number, status
		FROM invoices
	`)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load invoices: %w", err)
	}
	defer invoiceRows.Close()

	invoices := make([]InvoiceRecord, 0)
	for invoiceRows.Next() {
		var inv InvoiceRecord
		if err := invoiceRows.Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.Status); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := invoiceRows.Err(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("iterate invoices: %w", err)
	}

	quoteRows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, reference, title, status
		FROM quotes
	`)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load quotes: %w", err)
	}
	defer quoteRows.Close()

	quotes := make([]QuoteRecord, 0)
	for quoteRows.Next() {
		var qr QuoteRecord
		if err := quoteRows.Scan(&qr.ID, &qr.TenantID, &qr.Reference, &qr.Title, &qr.Status); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, qr)
	}
	if err := quoteRows.Err(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("iterate quotes: %w", err)
	}

	clientRows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, name
		FROM clients
	`)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load clients: %w", err)
	}
	defer clientRows.Close()

	clients := make([]ClientRecord, 0)
	for clientRows.Next() {
		var c ClientRecord
		if err := clientRows.Scan(&c.ID, &c.TenantID, &c.Name); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := clientRows.Err(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("iterate clients: %w", err)
	}

	return jobs, invoices, quotes, clients, nil
}
