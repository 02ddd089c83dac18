package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users and sessions ──

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, display_name, email, password_hash, role, client_id, deactivated_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.TenantID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.ClientID, &user.DeactivatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, display_name, email, role, client_id, deactivated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.TenantID, &user.DisplayName, &user.Email, &user.Role, &user.ClientID, &user.DeactivatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.display_name, u.role, u.client_id
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.TenantID, &user.DisplayName, &user.Role, &user.ClientID)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── Tenant-scoped source queries ──
//
// Every query below filters on tenant_id and caps its own row count: the
// feed engine fans out to all of them per request, so each source returns a
// bounded recent slice, never the whole table.

const jobColumns = `id, tenant_id, client_id, reference, title, status, engineer_id, lat, lng, scheduled_at, completed_at, open_snag_count, created_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.TenantID, &j.ClientID, &j.Reference, &j.Title, &j.Status, &j.EngineerID, &j.Lat, &j.Lng, &j.ScheduledAt, &j.CompletedAt, &j.OpenSnagCount, &j.CreatedAt)
	return j, err
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	items := make([]Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) JobsByTenant(ctx context.Context, tenantID string, limit int) ([]Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1 AND status <> 'cancelled'
		ORDER BY COALESCE(completed_at, scheduled_at, created_at) DESC
		LIMIT $2
	`, tenantID, limit)
}

func (s *PostgresStore) JobsForClient(ctx context.Context, tenantID, clientID string, limit int) ([]Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1 AND client_id = $2
		ORDER BY COALESCE(completed_at, scheduled_at, created_at) DESC
		LIMIT $3
	`, tenantID, clientID, limit)
}

func (s *PostgresStore) GetJob(ctx context.Context, tenantID, jobID string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, jobID)
	return scanJob(row)
}

const invoiceColumns = `id, tenant_id, client_id, job_id, number, status, amount_pence, currency, issued_at, due_at, paid_at, document_key, created_at`

func (s *PostgresStore) queryInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	items := make([]Invoice, 0)
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.ClientID, &inv.JobID, &inv.Number, &inv.Status, &inv.AmountPence, &inv.Currency, &inv.IssuedAt, &inv.DueAt, &inv.PaidAt, &inv.DocumentKey, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InvoicesByTenant(ctx context.Context, tenantID string, limit int) ([]Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = $1 AND status <> 'void'
		ORDER BY COALESCE(paid_at, issued_at, created_at) DESC
		LIMIT $2
	`, tenantID, limit)
}

func (s *PostgresStore) InvoicesForJob(ctx context.Context, tenantID, jobID string, limit int) ([]Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, jobID, limit)
}

func (s *PostgresStore) InvoicesForClient(ctx context.Context, tenantID, clientID string, limit int) ([]Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = $1 AND client_id = $2 AND status <> 'draft'
		ORDER BY COALESCE(paid_at, issued_at, created_at) DESC
		LIMIT $3
	`, tenantID, clientID, limit)
}

const quoteColumns = `id, tenant_id, client_id, reference, title, status, amount_pence, currency, accepted_at, job_id, lat, lng, created_at`

func (s *PostgresStore) queryQuotes(ctx context.Context, query string, args ...any) ([]Quote, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	items := make([]Quote, 0)
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.TenantID, &q.ClientID, &q.Reference, &q.Title, &q.Status, &q.AmountPence, &q.Currency, &q.AcceptedAt, &q.JobID, &q.Lat, &q.Lng, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) QuotesByTenant(ctx context.Context, tenantID string, limit int) ([]Quote, error) {
	return s.queryQuotes(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE tenant_id = $1 AND status <> 'declined'
		ORDER BY COALESCE(accepted_at, created_at) DESC
		LIMIT $2
	`, tenantID, limit)
}

func (s *PostgresStore) QuotesForClient(ctx context.Context, tenantID, clientID string, limit int) ([]Quote, error) {
	return s.queryQuotes(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE tenant_id = $1 AND client_id = $2 AND status <> 'draft'
		ORDER BY COALESCE(accepted_at, created_at) DESC
		LIMIT $3
	`, tenantID, clientID, limit)
}

func (s *PostgresStore) QuotesForJob(ctx context.Context, tenantID, jobID string, limit int) ([]Quote, error) {
	return s.queryQuotes(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, jobID, limit)
}

const certificateColumns = `id, tenant_id, client_id, job_id, reference, kind, status, completed_at, issued_at, document_key, created_at`

func (s *PostgresStore) queryCertificates(ctx context.Context, query string, args ...any) ([]Certificate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	items := make([]Certificate, 0)
	for rows.Next() {
		var c Certificate
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ClientID, &c.JobID, &c.Reference, &c.Kind, &c.Status, &c.CompletedAt, &c.IssuedAt, &c.DocumentKey, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CertificatesByTenant(ctx context.Context, tenantID string, limit int) ([]Certificate, error) {
	return s.queryCertificates(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE tenant_id = $1
		ORDER BY COALESCE(issued_at, completed_at, created_at) DESC
		LIMIT $2
	`, tenantID, limit)
}

func (s *PostgresStore) CertificatesForJob(ctx context.Context, tenantID, jobID string, limit int) ([]Certificate, error) {
	return s.queryCertificates(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, jobID, limit)
}

func (s *PostgresStore) CertificatesForClient(ctx context.Context, tenantID, clientID string, limit int) ([]Certificate, error) {
	return s.queryCertificates(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE tenant_id = $1 AND client_id = $2 AND status = 'issued'
		ORDER BY issued_at DESC
		LIMIT $3
	`, tenantID, clientID, limit)
}

func (s *PostgresStore) EnquiriesByTenant(ctx context.Context, tenantID string, limit int) ([]Enquiry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, source, status, created_at
		FROM enquiries
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query enquiries: %w", err)
	}
	defer rows.Close()

	items := make([]Enquiry, 0)
	for rows.Next() {
		var e Enquiry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.Source, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enquiry: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enquiries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DealsByTenant(ctx context.Context, tenantID string, limit int) ([]Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, stage, amount_pence, currency, stage_changed_at, created_at
		FROM deals
		WHERE tenant_id = $1
		ORDER BY stage_changed_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deals: %w", err)
	}
	defer rows.Close()

	items := make([]Deal, 0)
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Stage, &d.AmountPence, &d.Currency, &d.StageChangedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TimesheetsByTenant(ctx context.Context, tenantID string, since time.Time, limit int) ([]TimesheetEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, engineer_id, work_date, minutes, created_at
		FROM timesheet_entries
		WHERE tenant_id = $1 AND work_date >= $2
		ORDER BY work_date DESC
		LIMIT $3
	`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query timesheets: %w", err)
	}
	defer rows.Close()

	items := make([]TimesheetEntry, 0)
	for rows.Next() {
		var t TimesheetEntry
		if err := rows.Scan(&t.ID, &t.TenantID, &t.EngineerID, &t.WorkDate, &t.Minutes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timesheet: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timesheets: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AuditByTenant(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, actor_name, event_type, entity_type, entity_id, summary, created_at
		FROM audit_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var a AuditEntry
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ActorName, &a.EventType, &a.EntityType, &a.EntityID, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AuditForEntity(ctx context.Context, tenantID, entityID string, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, actor_name, event_type, entity_type, entity_id, summary, created_at
		FROM audit_log
		WHERE tenant_id = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query entity audit log: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var a AuditEntry
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ActorName, &a.EventType, &a.EntityType, &a.EntityID, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity audit log: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) EngineersByTenant(ctx context.Context, tenantID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, display_name, email, role
		FROM users
		WHERE tenant_id = $1 AND role = 'engineer' AND deactivated_at IS NULL
		ORDER BY display_name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query engineers: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.DisplayName, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("scan engineer: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engineers: %w", err)
	}
	return items, nil
}
