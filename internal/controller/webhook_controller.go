package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/internal/service"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

// WebhookHandler reconciles one provider event.
type WebhookHandler interface {
	HandleWebhookEvent(ctx context.Context, eventType string, data map[string]any) service.WebhookResult
}

type WebhookController struct {
	handler WebhookHandler
	logger  zerolog.Logger
}

func NewWebhookController(handler WebhookHandler, logger zerolog.Logger) *WebhookController {
	return &WebhookController{handler: handler, logger: observability.Component(logger, "webhook_controller")}
}

// Receive handles POST /webhooks/provider.
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	dec.UseNumber()

	var event WebhookEvent
	if err := dec.Decode(&event); err != nil {
		h.logger.Warn().Err(err).Msg("Undecodable webhook body")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Code: "invalid_body"})
		return
	}

	res := h.handler.HandleWebhookEvent(r.Context(), event.Type, event.Data)
	if res.StatusCode >= http.StatusBadRequest {
		writeJSON(w, res.StatusCode, ErrorResponse{Error: res.Message, Code: http.StatusText(res.StatusCode)})
		return
	}
	writeJSON(w, res.StatusCode, WebhookResponse{Message: res.Message})
}
