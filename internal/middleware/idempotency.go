package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/internal/repository/postgres"
	"github.com/rs/zerolog"
)

const maxReplayBodySize = 1 << 20

// DeliveryStore remembers the response given to each webhook delivery.
type DeliveryStore interface {
	Get(ctx context.Context, id string) (*postgres.Delivery, error)
	Save(ctx context.Context, d *postgres.Delivery) error
}

// WebhookDedup answers a redelivered webhook, identified by its webhook-id
// header, with the stored response instead of processing it again. Only
// responses below 500 are stored, so failed deliveries are retried for real.
func WebhookDedup(store DeliveryStore, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderWebhookID)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			prior, err := store.Get(r.Context(), id)
			if err != nil {
				logger.Warn().Err(err).Str("webhook_id", id).Msg("Delivery lookup failed, processing anyway")
			}
			if prior != nil {
				if metrics != nil {
					metrics.WebhookReplaysTotal.Inc()
				}
				logger.Info().Str("webhook_id", id).Msg("Replaying stored webhook response")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Webhook-Replayed", "true")
				w.WriteHeader(prior.ResponseStatus)
				_, _ = w.Write([]byte(prior.ResponseBody))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			now := time.Now()
			err = store.Save(context.WithoutCancel(r.Context()), &postgres.Delivery{
				ID:             id,
				ResponseBody:   rec.body.String(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(ttl),
			})
			if err != nil {
				logger.Warn().Err(err).Str("webhook_id", id).Msg("Failed to store webhook response")
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxReplayBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
