package domain

import "time"

// SessionStatus is the persisted lifecycle state of a tenant's session.
type SessionStatus string

const (
	StatusDisconnected SessionStatus = "DISCONNECTED"
	StatusScanning     SessionStatus = "SCANNING"
	StatusConnected    SessionStatus = "CONNECTED"
	StatusReconnecting SessionStatus = "RECONNECTING"
)

// MessageStatus tracks an outbound message log entry.
type MessageStatus string

const (
	MessageQueued MessageStatus = "QUEUED"
	MessageSent   MessageStatus = "SENT"
	MessageFailed MessageStatus = "FAILED"
)

// JobStatus is the dispatch queue state of an outbound job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobSucceeded  JobStatus = "succeeded"
	JobFailedPerm JobStatus = "failed_perm"
)

// Tenant owns exactly one session and the API key authorizing public calls.
type Tenant struct {
	ID         string
	Name       string
	APIKey     string
	WebhookURL *string
	CreatedAt  time.Time
}

// Session is the persistent connection slot for a tenant. The session id
// equals the owning tenant id.
type Session struct {
	ID        string
	TenantID  string
	Status    SessionStatus
	JID       *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageLog is the audit record of one outbound send attempt.
type MessageLog struct {
	ID        string
	TenantID  string
	To        string
	Content   string
	Status    MessageStatus
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is one queued outbound send. The job row in postgres is the source of
// truth; the redis queue only moves job ids.
type Job struct {
	ID          string
	TenantID    string
	To          string
	Message     string
	LogID       string
	Attempt     int
	MaxAttempts int
	Status      JobStatus
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TenantOverview is a tenant joined with its session status for listings.
type TenantOverview struct {
	ID        string
	Name      string
	APIKey    string
	Status    SessionStatus
	JID       *string
	CreatedAt time.Time
}

// Admin is an operator account for the administrative API.
type Admin struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
