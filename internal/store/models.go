package store

import "time"

type User struct {
	ID            string
	TenantID      string
	DisplayName   string
	Email         string
	PasswordHash  string
	Role          string
	ClientID      *string
	DeactivatedAt *time.Time
	CreatedAt     time.Time
}

type Client struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}

// Job statuses: scheduled, in_progress, completed, cancelled.
type Job struct {
	ID            string
	TenantID      string
	ClientID      string
	Reference     string
	Title         string
	Status        string
	EngineerID    *string
	Lat           *float64
	Lng           *float64
	ScheduledAt   *time.Time
	CompletedAt   *time.Time
	OpenSnagCount int
	CreatedAt     time.Time
}

// Invoice statuses: draft, issued, paid, void.
type Invoice struct {
	ID          string
	TenantID    string
	ClientID    string
	JobID       *string
	Number      string
	Status      string
	AmountPence int64
	Currency    string
	IssuedAt    *time.Time
	DueAt       *time.Time
	PaidAt      *time.Time
	DocumentKey *string
	CreatedAt   time.Time
}

// Quote statuses: draft, sent, accepted, declined.
type Quote struct {
	ID          string
	TenantID    string
	ClientID    string
	Reference   string
	Title       string
	Status      string
	AmountPence int64
	Currency    string
	AcceptedAt  *time.Time
	JobID       *string
	Lat         *float64
	Lng         *float64
	CreatedAt   time.Time
}

// Certificate statuses: draft, completed, issued.
type Certificate struct {
	ID          string
	TenantID    string
	ClientID    string
	JobID       *string
	Reference   string
	Kind        string
	Status      string
	CompletedAt *time.Time
	IssuedAt    *time.Time
	DocumentKey *string
	CreatedAt   time.Time
}

type Enquiry struct {
	ID        string
	TenantID  string
	Name      string
	Source    string
	Status    string
	CreatedAt time.Time
}

type Deal struct {
	ID             string
	TenantID       string
	Title          string
	Stage          string
	AmountPence    int64
	Currency       string
	StageChangedAt time.Time
	CreatedAt      time.Time
}

type TimesheetEntry struct {
	ID         string
	TenantID   string
	EngineerID string
	WorkDate   time.Time
	Minutes    int
	CreatedAt  time.Time
}

type AuditEntry struct {
	ID         int64
	TenantID   string
	ActorName  string
	EventType  string
	EntityType string
	EntityID   string
	Summary    string
	CreatedAt  time.Time
}
