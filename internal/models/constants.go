package models

// StatusConfirmed is the only status a persisted reservation can have.
const StatusConfirmed = "confirmed"

// Keys written into the checkout session metadata and read back from the
// confirmation event.
const (
	MetaCheckIn  = "checkin"
	MetaCheckOut = "checkout"
	MetaGuests   = "guests"
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	ConflictReasonOverlap = "overlap"
)

const (
	ParseModeMarkdown = "Markdown"
)

const (
	// DefaultLedgerTTL keeps processed gateway event ids for longer than the
	// gateway's redelivery window (three days for Stripe).
	DefaultLedgerTTL = 30 * 24 * 60 * 60 // 30 days in seconds

	// WorkerQueueSize is the in-memory sheets queue capacity.
	WorkerQueueSize = 128

	// MaxWebhookBodyBytes caps the webhook payload read into memory.
	MaxWebhookBodyBytes = 65536
)
