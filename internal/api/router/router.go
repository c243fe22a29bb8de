package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harmonyhall/lessons-payments/internal/customers"
	httpmiddleware "github.com/harmonyhall/lessons-payments/internal/http/middleware"
	"github.com/harmonyhall/lessons-payments/internal/httpapi"
	"github.com/harmonyhall/lessons-payments/internal/lessons"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	CustomersHandler   *customers.Handler
	LessonsHandler     *lessons.Handler
	PublishableKey     string
	CORSAllowedOrigins []string
	MetricsHandler     http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.JSONRecoverer(cfg.Logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/config", func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"key": cfg.PublishableKey})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Customer & payment-method management
	r.Post("/create-client", cfg.CustomersHandler.CreateClient)
	r.Get("/create-setup-intent", cfg.CustomersHandler.CreateSetupIntent)
	r.Post("/lessons", cfg.CustomersHandler.AttachPaymentMethod)
	r.Post("/account-update/{customerID}", cfg.CustomersHandler.AccountUpdate)
	r.Get("/payment-method/{customerID}", cfg.CustomersHandler.PaymentMethodSummary)
	r.Post("/delete-account/{customerID}", cfg.CustomersHandler.DeleteAccount)

	// Lesson payment lifecycle
	r.Post("/schedule-lesson", cfg.LessonsHandler.ScheduleLesson)
	r.Post("/complete-lesson-payment", cfg.LessonsHandler.CompleteLessonPayment)
	r.Post("/refund-lesson", cfg.LessonsHandler.RefundLesson)
	r.Get("/calculate-lesson-total", cfg.LessonsHandler.CalculateLessonTotal)
	r.Get("/find-customers-with-failed-payments", cfg.LessonsHandler.FindCustomersWithFailedPayments)

	return r
}
