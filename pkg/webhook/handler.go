package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	plerrors "github.com/parleyhq/parley/pkg/errors"
	"github.com/parleyhq/parley/pkg/logging"
)

// Request headers set by the platform on webhook deliveries.
const (
	HeaderSignature = "x-signature"
	HeaderAPIKey    = "x-api-key"
)

// maxBodyBytes bounds webhook payload reads.
const maxBodyBytes = 1 << 20

// Handler is the HTTP entry point for platform webhook deliveries. It
// verifies the signature over the raw body, decodes the event, and hands it
// to the Service.
type Handler struct {
	service   *Service
	apiSecret string
	metrics   *Metrics
	logger    logging.Logger
}

// NewHandler creates the webhook HTTP handler. The metrics set must be the
// same one the service uses so counters line up.
func NewHandler(service *Service, apiSecret string, metrics *Metrics, logger logging.Logger) *Handler {
	if metrics == nil {
		metrics = NewNopMetrics()
	}
	return &Handler{
		service:   service,
		apiSecret: apiSecret,
		metrics:   metrics,
		logger:    logger.With(logging.F("component", "webhook_handler")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	signature := r.Header.Get(HeaderSignature)
	apiKey := r.Header.Get(HeaderAPIKey)
	if signature == "" || apiKey == "" {
		writeError(w, http.StatusBadRequest, "missing signature or API key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if err := VerifySignature(h.apiSecret, signature, body); err != nil {
		h.metrics.SignatureFailures.Inc()
		h.logger.Warn("Rejected webhook delivery", logging.Err(err))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	evt, err := DecodeEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if evt == nil {
		// Unknown event kinds are acknowledged so the platform does not
		// retry them forever.
		h.metrics.EventsTotal.WithLabelValues("unknown", OutcomeIgnored).Inc()
		writeOK(w)
		return
	}

	if err := h.service.Process(r.Context(), evt); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeOK(w)
}

// statusFor maps a handler error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case plerrors.IsUnauthorized(err):
		return http.StatusUnauthorized
	case plerrors.IsNotFound(err):
		return http.StatusNotFound
	case plerrors.IsValidation(err),
		plerrors.IsMalformedPayload(err),
		plerrors.IsEmptyCompletion(err):
		return http.StatusBadRequest
	case plerrors.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	// Server-side failures get a generic message so internals never leak to
	// the caller.
	switch {
	case status == http.StatusBadGateway:
		msg = "upstream service failure"
	case status >= 500:
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
