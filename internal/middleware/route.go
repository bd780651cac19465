package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routePattern returns chi's matched pattern, e.g. "/payments/{id}/status",
// or "" before routing or when nothing matched.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
