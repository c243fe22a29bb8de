package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONRecovererWritesJSON500(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	mw := JSONRecoverer(nil)
	req := httptest.NewRequest(http.MethodGet, "/schedule-lesson", nil)
	rec := httptest.NewRecorder()

	mw(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected JSON content type, got %q", got)
	}
	want := `{"error":{"code":"internal_error","message":"internal server error"}}`
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestJSONRecovererPassesThrough(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	mw := JSONRecoverer(nil)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected passthrough status, got %d", rec.Code)
	}
}
