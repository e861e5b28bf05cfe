package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"olympspa/internal/config"
	"olympspa/internal/domain"
	"olympspa/internal/models"
	"olympspa/internal/service"

	"github.com/rs/zerolog"
)

// Resyncer rebuilds the spreadsheet mirror from the store.
type Resyncer interface {
	EnqueueResync(ctx context.Context) error
}

// Services groups what the HTTP handlers call into.
type Services struct {
	Availability *service.AvailabilityService
	Checkout     *service.CheckoutService
	Reconciler   *service.Reconciler
	Store        Pinger
	// Resync is nil when the spreadsheet mirror is not configured.
	Resync Resyncer
}

// HTTPServer exposes the public booking API, the payment webhook and the
// admin endpoints.
type HTTPServer struct {
	cfg          config.HTTPConfig
	services     Services
	server       *http.Server
	limiter      *rateLimiter
	admin        *AdminAuth
	maxBodyBytes int64
	logger       *zerolog.Logger
}

func NewHTTPServer(cfg config.HTTPConfig, adminCfg config.AdminConfig, services Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	srv := &HTTPServer{
		cfg:          cfg,
		services:     services,
		limiter:      newRateLimiter(cfg.RateLimit),
		admin:        NewAdminAuth(adminCfg),
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}
	if srv.maxBodyBytes <= 0 {
		srv.maxBodyBytes = models.MaxWebhookBodyBytes
	}

	mux := http.NewServeMux()
	mux.Handle("/bookings", srv.rateLimit(http.HandlerFunc(srv.handleBookings)))
	mux.Handle("/create-checkout-session", srv.rateLimit(http.HandlerFunc(srv.handleCreateCheckout)))
	mux.HandleFunc("/webhook", srv.handleWebhook)
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/readyz", srv.handleReadyz)
	mux.Handle("/admin/conflicts", srv.admin.Wrap(http.HandlerFunc(srv.handleConflicts)))
	mux.Handle("/admin/export.xlsx", srv.admin.Wrap(http.HandlerFunc(srv.handleExport)))
	mux.Handle("/admin/resync", srv.admin.Wrap(http.HandlerFunc(srv.handleResync)))

	handler := loggingMiddleware(logger, corsMiddleware(cfg.CORSOrigins, mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

const (
	codeInvalidRequest = "invalid_request"
	codeConflict       = "conflict"
	codeGatewayError   = "gateway_error"
	codeUntrusted      = "untrusted_event"
	codeTooLarge       = "payload_too_large"
	codeInternal       = "internal_error"
	codeUnauthorized   = "unauthorized"
	codeForbidden      = "forbidden"
	codeRateLimited    = "rate_limited"
	codeMethod         = "method_not_allowed"
	codeUnavailable    = "unavailable"
)

// errorStatus maps domain errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, domain.ErrInvalidGuests), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, domain.ErrPaymentGateway):
		return http.StatusBadGateway, codeGatewayError
	case errors.Is(err, domain.ErrUntrustedEvent):
		return http.StatusBadRequest, codeUntrusted
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, code := errorStatus(err)
	message := err.Error()
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if statusCode == http.StatusInternalServerError {
			message = "internal server error"
		}
	}
	writeError(w, statusCode, code, message)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}
