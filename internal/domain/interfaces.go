package domain

import (
	"context"
	"time"

	"olympspa/internal/interval"
	"olympspa/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ReservationStore is the single serialization point for admitting reservations.
type ReservationStore interface {
	ListAll(ctx context.Context) ([]*models.Reservation, error)
	FindOverlapping(ctx context.Context, r interval.Range) ([]*models.Reservation, error)
	// TryInsert atomically checks the range against every confirmed reservation
	// and writes r. It returns ErrConflict on overlap. When a reservation for
	// r.SessionID already exists, r is overwritten with it and created is false.
	TryInsert(ctx context.Context, r *models.Reservation) (created bool, err error)
	RecordConflict(ctx context.Context, c *models.Conflict) error
	ListConflicts(ctx context.Context) ([]*models.Conflict, error)
	Ping(ctx context.Context) error
}

type SyncTaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutHandle, error)
	// VerifyAndParseEvent authenticates a raw webhook delivery.
	VerifyAndParseEvent(payload []byte, signatureHeader string) (*models.PaymentEvent, error)
}

// IdempotencyLedger remembers the outcome recorded for each gateway event id.
type IdempotencyLedger interface {
	Lookup(ctx context.Context, eventID string) (models.ConfirmationOutcome, bool, error)
	Record(ctx context.Context, eventID string, outcome models.ConfirmationOutcome) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueReservation(ctx context.Context, r *models.Reservation) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	AppendReservation(ctx context.Context, r *models.Reservation) error
}
