package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"olympspa/internal/database"
	"olympspa/internal/events"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

func (m *mockStore) FindOverlapping(ctx context.Context, r interval.Range) ([]*models.Reservation, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

func (m *mockStore) TryInsert(ctx context.Context, r *models.Reservation) (bool, error) {
	args := m.Called(ctx, r)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) RecordConflict(ctx context.Context, c *models.Conflict) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockStore) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Conflict), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutHandle, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutHandle), args.Error(1)
}

func (m *mockGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (*models.PaymentEvent, error) {
	args := m.Called(payload, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentEvent), args.Error(1)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueReservation(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

// recordingBus captures every event published through an EventBus.
type recordingBus struct {
	*events.EventBus
	mu     sync.Mutex
	events []*events.Event
}

func newRecordingBus(types ...string) *recordingBus {
	rb := &recordingBus{EventBus: events.NewEventBus()}
	for _, typ := range types {
		rb.Subscribe(typ, func(e *events.Event) error {
			rb.mu.Lock()
			defer rb.mu.Unlock()
			rb.events = append(rb.events, e)
			return nil
		})
	}
	return rb
}

func (rb *recordingBus) ofType(typ string) []*events.Event {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	var out []*events.Event
	for _, e := range rb.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func nopLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), nopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustRange(t *testing.T, from, to string) interval.Range {
	t.Helper()
	r, err := interval.Parse(from, to)
	require.NoError(t, err)
	return r
}
