package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

// errorBody is the wire shape for every failure response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the taxonomy and writes the JSON error envelope.
// Unexpected errors become a 500 with a generic code so no internal detail
// leaks to a remote caller.
func WriteError(w http.ResponseWriter, logger *logging.Logger, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	apiErr := FromGateway(err)
	if apiErr == nil {
		apiErr = Upstream("internal_error", "unexpected error")
	}
	if apiErr.Kind == KindUpstream {
		logger.Error("request failed upstream", "code", apiErr.Code, "error", apiErr.Message)
	}
	WriteJSON(w, apiErr.HTTPStatus(), errorBody{Error: errorDetail{
		Code:            apiErr.Code,
		Message:         apiErr.Message,
		PaymentIntentID: apiErr.PaymentIntentID,
	}})
}
