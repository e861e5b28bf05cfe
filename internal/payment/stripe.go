package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"olympspa/internal/config"
	"olympspa/internal/domain"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

const checkoutSessionEventPrefix = "checkout.session."

// StripeGateway creates hosted checkout sessions and authenticates webhook
// deliveries. It keeps its own backend so tests and stripe-mock can point it
// at another base URL without touching the package-level stripe.Key.
type StripeGateway struct {
	sessions session.Client
	cfg      config.StripeConfig
	logger   *zerolog.Logger
}

// NewStripeGateway builds a gateway. httpClient may be nil.
func NewStripeGateway(cfg config.StripeConfig, httpClient *http.Client, logger *zerolog.Logger) *StripeGateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:    httpClient,
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(cfg.APIBaseURL)
		// Local endpoints never need the network retry budget.
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}

	return &StripeGateway{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// ProductName renders the line item title shown on the hosted page.
func ProductName(base string, guests int) string {
	noun := "pessoa"
	if guests > 1 {
		noun = "pessoas"
	}
	return fmt.Sprintf("%s (%d %s)", base, guests, noun)
}

// Metadata is the payload echoed back on the confirmation event.
func Metadata(req models.CheckoutRequest) map[string]string {
	return map[string]string{
		models.MetaCheckIn:  interval.Format(req.Range.From),
		models.MetaCheckOut: interval.Format(req.Range.To),
		models.MetaGuests:   strconv.Itoa(req.Guests),
	}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutHandle, error) {
	description := fmt.Sprintf("Check-in: %s, Check-out: %s",
		interval.Format(req.Range.From), interval.Format(req.Range.To))

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(ProductName(g.cfg.ProductName, req.Guests)),
						Description: stripe.String(description),
					},
					UnitAmount: stripe.Int64(g.cfg.UnitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}
	params.Context = ctx
	for k, v := range Metadata(req) {
		params.AddMetadata(k, v)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		g.logger.Error().Err(err).Str("range", req.Range.String()).Msg("Stripe session creation failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}

	return &models.CheckoutHandle{SessionID: s.ID, URL: s.URL}, nil
}

// VerifyAndParseEvent checks the Stripe-Signature header against the webhook
// secret before decoding anything from payload.
func (g *StripeGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (*models.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUntrustedEvent, err)
	}

	pe := &models.PaymentEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if !strings.HasPrefix(pe.Type, checkoutSessionEventPrefix) || event.Data == nil {
		return pe, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		// Authentic but unreadable: the caller still gets the event id to settle it.
		return pe, fmt.Errorf("%w: decode checkout session: %v", domain.ErrRejectedInvalid, err)
	}
	pe.SessionID = cs.ID
	pe.Metadata = cs.Metadata

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		pe.Paid = cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		pe.Paid = true
	}
	return pe, nil
}
