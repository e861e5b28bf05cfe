package service

import (
	"context"
	"errors"
	"testing"

	"olympspa/internal/domain"
	"olympspa/internal/events"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCheckoutFixture(t *testing.T) (*CheckoutService, *mockGateway, *recordingBus, domain.ReservationStore) {
	t.Helper()
	store := newTestStore(t)
	gateway := new(mockGateway)
	bus := newRecordingBus(events.EventCheckoutCreated)
	svc := NewCheckoutService(NewAvailabilityService(store, nopLogger()), gateway, bus, nopLogger())
	return svc, gateway, bus, store
}

func TestCreateCheckout_Success(t *testing.T) {
	svc, gateway, bus, store := newCheckoutFixture(t)
	ctx := context.Background()
	rng := mustRange(t, "2024-07-01", "2024-07-03")

	gateway.On("CreateSession", ctx, models.CheckoutRequest{Range: rng, Guests: 2}).
		Return(&models.CheckoutHandle{SessionID: "cs_1", URL: "https://pay.example/cs_1"}, nil).Once()

	handle, err := svc.CreateCheckout(ctx, rng, 2)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", handle.SessionID)
	gateway.AssertExpectations(t)

	// No reservation exists until payment is confirmed.
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	published := bus.ofType(events.EventCheckoutCreated)
	require.Len(t, published, 1)
	var payload events.ReservationEventPayload
	require.NoError(t, published[0].Decode(&payload))
	assert.Equal(t, "cs_1", payload.SessionID)
	assert.Equal(t, string(models.OutcomeAwaitingPayment), payload.Outcome)
}

func TestCreateCheckout_ConflictSkipsGateway(t *testing.T) {
	svc, gateway, _, store := newCheckoutFixture(t)
	ctx := context.Background()

	taken := mustRange(t, "2024-06-01", "2024-06-05")
	_, err := store.TryInsert(ctx, &models.Reservation{From: taken.From, To: taken.To, Guests: 1, SessionID: "cs_taken"})
	require.NoError(t, err)

	_, err = svc.CreateCheckout(ctx, mustRange(t, "2024-06-03", "2024-06-08"), 2)
	assert.ErrorIs(t, err, domain.ErrConflict)
	gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestCreateCheckout_Validation(t *testing.T) {
	svc, gateway, _, _ := newCheckoutFixture(t)
	ctx := context.Background()
	from := mustRange(t, "2024-06-10", "2024-06-11").From

	_, err := svc.CreateCheckout(ctx, interval.Range{From: from, To: from.AddDate(0, 0, -9)}, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.CreateCheckout(ctx, mustRange(t, "2024-06-10", "2024-06-11"), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidGuests)

	gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestCreateCheckout_GatewayError(t *testing.T) {
	svc, gateway, bus, _ := newCheckoutFixture(t)
	ctx := context.Background()
	rng := mustRange(t, "2024-08-01", "2024-08-02")

	gateway.On("CreateSession", ctx, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	handle, err := svc.CreateCheckout(ctx, rng, 1)
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)
	assert.Empty(t, bus.ofType(events.EventCheckoutCreated))
	gateway.AssertExpectations(t)
}
