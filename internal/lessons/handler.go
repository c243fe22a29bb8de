package lessons

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/harmonyhall/lessons-payments/internal/httpapi"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

const (
	defaultWindowHours = 36
	maxWindowHours     = 168
)

// Handler exposes the lesson payment lifecycle HTTP surface.
type Handler struct {
	service     *Service
	logger      *logging.Logger
	windowHours int
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger, windowHours: defaultWindowHours}
}

// WithReportWindowHours overrides the default trailing window for reports.
func (h *Handler) WithReportWindowHours(hours int) *Handler {
	if hours > 0 {
		h.windowHours = hours
	}
	return h
}

type scheduleLessonRequest struct {
	CustomerID  string `json:"customer_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// ScheduleLesson handles POST /schedule-lesson: authorize without capturing.
func (h *Handler) ScheduleLesson(w http.ResponseWriter, r *http.Request) {
	var req scheduleLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.logger, httpapi.Validation("invalid_payload", "request body must be JSON"))
		return
	}

	intent, err := h.service.Authorize(r.Context(), req.CustomerID, req.Amount, req.Description)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"payment": intent})
}

type completePaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
}

// CompleteLessonPayment handles POST /complete-lesson-payment: capture.
func (h *Handler) CompleteLessonPayment(w http.ResponseWriter, r *http.Request) {
	var req completePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.logger, httpapi.Validation("invalid_payload", "request body must be JSON"))
		return
	}

	intent, err := h.service.Capture(r.Context(), req.PaymentIntentID, req.Amount)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"payment": intent})
}

type refundLessonRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
}

// RefundLesson handles POST /refund-lesson.
func (h *Handler) RefundLesson(w http.ResponseWriter, r *http.Request) {
	var req refundLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.logger, httpapi.Validation("invalid_payload", "request body must be JSON"))
		return
	}

	refundID, err := h.service.Refund(r.Context(), req.PaymentIntentID, req.Amount)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"refund": refundID})
}

// CalculateLessonTotal handles GET /calculate-lesson-total.
func (h *Handler) CalculateLessonTotal(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RevenueWindow(r.Context(), h.window(r))
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, report)
}

// FindCustomersWithFailedPayments handles GET /find-customers-with-failed-payments.
func (h *Handler) FindCustomersWithFailedPayments(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.FailedPayments(r.Context(), h.window(r))
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, records)
}

// window resolves the trailing report window, honoring an optional ?hours=
// override clamped to [1, 168].
func (h *Handler) window(r *http.Request) time.Duration {
	hours := h.windowHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			hours = parsed
		}
	}
	if hours < 1 {
		hours = 1
	}
	if hours > maxWindowHours {
		hours = maxWindowHours
	}
	return time.Duration(hours) * time.Hour
}
