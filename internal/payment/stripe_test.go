package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"olympspa/internal/config"
	"olympspa/internal/domain"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig(baseURL string) config.StripeConfig {
	return config.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		APIBaseURL:    baseURL,
		Currency:      "brl",
		UnitAmount:    15000,
		ProductName:   "Reserva",
		SuccessURL:    "https://example.com/success.html",
		CancelURL:     "https://example.com/cancel.html",
	}
}

func mustRange(t *testing.T, from, to string) interval.Range {
	t.Helper()
	r, err := interval.Parse(from, to)
	require.NoError(t, err)
	return r
}

func TestCreateSession(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	g := NewStripeGateway(testConfig(srv.URL), srv.Client(), nil)
	handle, err := g.CreateSession(context.Background(), models.CheckoutRequest{
		Range:  mustRange(t, "2025-07-01", "2025-07-03"),
		Guests: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", handle.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", handle.URL)

	get := func(key string) string {
		if v := form[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	assert.Equal(t, "payment", get("mode"))
	assert.Equal(t, "card", get("payment_method_types[0]"))
	assert.Equal(t, "brl", get("line_items[0][price_data][currency]"))
	assert.Equal(t, "15000", get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "1", get("line_items[0][quantity]"))
	assert.Equal(t, "Reserva (2 pessoas)", get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "Check-in: 2025-07-01, Check-out: 2025-07-03", get("line_items[0][price_data][product_data][description]"))
	assert.Equal(t, "2025-07-01", get("metadata[checkin]"))
	assert.Equal(t, "2025-07-03", get("metadata[checkout]"))
	assert.Equal(t, "2", get("metadata[guests]"))
	assert.Equal(t, "https://example.com/success.html", get("success_url"))
	assert.Equal(t, "https://example.com/cancel.html", get("cancel_url"))
}

func TestCreateSession_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	}))
	defer srv.Close()

	g := NewStripeGateway(testConfig(srv.URL), srv.Client(), nil)
	handle, err := g.CreateSession(context.Background(), models.CheckoutRequest{
		Range:  mustRange(t, "2025-07-01", "2025-07-03"),
		Guests: 1,
	})
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)
}

func TestProductName(t *testing.T) {
	assert.Equal(t, "Reserva (1 pessoa)", ProductName("Reserva", 1))
	assert.Equal(t, "Reserva (4 pessoas)", ProductName("Reserva", 4))
}

func TestMetadata_SubDay(t *testing.T) {
	from := time.Date(2025, 8, 1, 17, 0, 0, 0, time.UTC)
	meta := Metadata(models.CheckoutRequest{
		Range:  interval.Range{From: from, To: from.Add(21 * time.Hour)},
		Guests: 3,
	})
	assert.Equal(t, "2025-08-01T17:00:00Z", meta[models.MetaCheckIn])
	assert.Equal(t, "2025-08-02T14:00:00Z", meta[models.MetaCheckOut])
	assert.Equal(t, "3", meta[models.MetaGuests])
}

func signedEvent(t *testing.T, secret string, event map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func sessionEvent(id, eventType, paymentStatus string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_test_9",
				"object":         "checkout.session",
				"payment_status": paymentStatus,
				"metadata":       metadata,
			},
		},
	}
}

func TestVerifyAndParseEvent(t *testing.T) {
	g := NewStripeGateway(testConfig(""), nil, nil)
	meta := map[string]string{"checkin": "2025-07-01", "checkout": "2025-07-03", "guests": "2"}

	t.Run("CompletedPaid", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, sessionEvent("evt_1", "checkout.session.completed", "paid", meta))
		pe, err := g.VerifyAndParseEvent(payload, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", pe.ID)
		assert.Equal(t, "cs_test_9", pe.SessionID)
		assert.True(t, pe.Paid)
		assert.Equal(t, "2025-07-01", pe.GetString(models.MetaCheckIn))
		guests, ok := pe.GetInt(models.MetaGuests)
		assert.True(t, ok)
		assert.Equal(t, 2, guests)
	})

	t.Run("CompletedUnpaid", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, sessionEvent("evt_2", "checkout.session.completed", "unpaid", meta))
		pe, err := g.VerifyAndParseEvent(payload, header)
		require.NoError(t, err)
		assert.False(t, pe.Paid)
	})

	t.Run("AsyncSucceeded", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, sessionEvent("evt_3", "checkout.session.async_payment_succeeded", "paid", meta))
		pe, err := g.VerifyAndParseEvent(payload, header)
		require.NoError(t, err)
		assert.True(t, pe.Paid)
	})

	t.Run("UnrelatedType", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, map[string]any{
			"id": "evt_4", "object": "event", "type": "charge.refunded",
			"data": map[string]any{"object": map[string]any{"id": "ch_1", "object": "charge"}},
		})
		pe, err := g.VerifyAndParseEvent(payload, header)
		require.NoError(t, err)
		assert.False(t, pe.Paid)
		assert.Empty(t, pe.SessionID)
	})

	t.Run("AuthenticButUndecodableSession", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, map[string]any{
			"id": "evt_8", "object": "event", "type": "checkout.session.completed",
			"data": map[string]any{"object": map[string]any{"id": "cs_bad", "object": "checkout.session", "metadata": "not-a-map"}},
		})
		pe, err := g.VerifyAndParseEvent(payload, header)
		assert.ErrorIs(t, err, domain.ErrRejectedInvalid)
		assert.NotErrorIs(t, err, domain.ErrUntrustedEvent)
		require.NotNil(t, pe)
		assert.Equal(t, "evt_8", pe.ID)
		assert.False(t, pe.Paid)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		payload, header := signedEvent(t, "whsec_other", sessionEvent("evt_5", "checkout.session.completed", "paid", meta))
		_, err := g.VerifyAndParseEvent(payload, header)
		assert.ErrorIs(t, err, domain.ErrUntrustedEvent)
	})

	t.Run("MissingSignature", func(t *testing.T) {
		payload, _ := signedEvent(t, testWebhookSecret, sessionEvent("evt_6", "checkout.session.completed", "paid", meta))
		_, err := g.VerifyAndParseEvent(payload, "")
		assert.ErrorIs(t, err, domain.ErrUntrustedEvent)
	})

	t.Run("TamperedBody", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, sessionEvent("evt_7", "checkout.session.completed", "paid", meta))
		tampered := append([]byte{}, payload...)
		tampered[len(tampered)-2] = ' '
		_, err := g.VerifyAndParseEvent(tampered, header)
		assert.ErrorIs(t, err, domain.ErrUntrustedEvent)
	})
}
