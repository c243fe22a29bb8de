package customers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harmonyhall/lessons-payments/internal/httpapi"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

// Handler exposes the customer management HTTP surface.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type createClientRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	FirstLesson string `json:"firstLesson"`
}

// CreateClient handles POST /create-client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.logger, httpapi.Validation("invalid_payload", "request body must be JSON"))
		return
	}
	if req.Email == "" {
		httpapi.WriteError(w, h.logger, httpapi.Validation("missing_field", "email is required"))
		return
	}

	metadata := map[string]string{}
	if req.FirstLesson != "" {
		metadata["first_lesson"] = req.FirstLesson
	}
	customerID, err := h.service.Create(r.Context(), req.Name, req.Email, metadata)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"customerId": customerID})
}

// CreateSetupIntent handles GET /create-setup-intent.
func (h *Handler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	clientSecret, err := h.service.BeginPaymentMethodSetup(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"clientSecret": clientSecret})
}

type attachMethodRequest struct {
	CustomerID      string `json:"id"`
	PaymentMethodID string `json:"paymentMethodId"`
}

// AttachPaymentMethod handles POST /lessons: binds a confirmed payment
// method to the customer and reports the card for display.
func (h *Handler) AttachPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req attachMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.logger, httpapi.Validation("invalid_payload", "request body must be JSON"))
		return
	}
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		httpapi.WriteError(w, h.logger, httpapi.Validation("missing_field", "id and paymentMethodId are required"))
		return
	}

	card, err := h.service.AttachPaymentMethod(r.Context(), req.CustomerID, req.PaymentMethodID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"lastFour": card.LastFour,
		"brand":    card.Brand,
	})
}

type accountUpdateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AccountUpdate handles POST /account-update/{customerID}.
func (h *Handler) AccountUpdate(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	var req accountUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.logger, httpapi.Validation("invalid_payload", "request body must be JSON"))
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), customerID, req.Name, req.Email)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"updatedName":  profile.Name,
		"updatedEmail": profile.Email,
	})
}

type methodSummaryResponse struct {
	Customer struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer"`
	Card struct {
		Brand    string `json:"brand"`
		Last4    string `json:"last4"`
		ExpMonth int64  `json:"exp_month"`
		ExpYear  int64  `json:"exp_year"`
	} `json:"card"`
}

// PaymentMethodSummary handles GET /payment-method/{customerID}.
func (h *Handler) PaymentMethodSummary(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	summary, err := h.service.PaymentMethodSummary(r.Context(), customerID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var resp methodSummaryResponse
	resp.Customer.ID = summary.CustomerID
	resp.Customer.Email = summary.Email
	resp.Customer.Name = summary.Name
	resp.Card.Brand = summary.Brand
	resp.Card.Last4 = summary.LastFour
	resp.Card.ExpMonth = summary.ExpMonth
	resp.Card.ExpYear = summary.ExpYear
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

// DeleteAccount handles POST /delete-account/{customerID}.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	result, err := h.service.Delete(r.Context(), customerID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}
	if len(result.UncapturedPaymentIntents) > 0 {
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"uncaptured_payments": result.UncapturedPaymentIntents,
		})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
