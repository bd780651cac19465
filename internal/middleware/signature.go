package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/rs/zerolog"
)

// Webhook delivery headers.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

const maxWebhookBodySize = 1 << 20

// WebhookVerifier checks the HMAC-SHA256 signature a provider puts on each
// delivery: base64(HMAC(secret, id + "." + timestamp + "." + body)), sent
// as one or more space separated "v1,<sig>" entries.
type WebhookVerifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier accepts the secret either raw or as "whsec_" followed
// by base64.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	key := []byte(secret)
	if rest, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(rest); err == nil {
			key = decoded
		} else {
			key = []byte(rest)
		}
	}
	return &WebhookVerifier{key: key, tolerance: tolerance, now: time.Now}
}

// Sign returns the signature header value for a delivery.
func (v *WebhookVerifier) Sign(id string, ts time.Time, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.mac(id, strconv.FormatInt(ts.Unix(), 10), body))
}

// Verify returns ErrInvalidSignature unless one of the header's signatures
// matches and the timestamp is within tolerance.
func (v *WebhookVerifier) Verify(h http.Header, body []byte) error {
	id := h.Get(HeaderWebhookID)
	ts := h.Get(HeaderWebhookTimestamp)
	if id == "" || ts == "" {
		return domainErrors.ErrInvalidSignature
	}

	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domainErrors.ErrInvalidSignature
	}
	age := v.now().Sub(time.Unix(secs, 0))
	if age > v.tolerance || age < -v.tolerance {
		return domainErrors.ErrInvalidSignature
	}

	expected := v.mac(id, ts, body)
	for _, entry := range strings.Fields(h.Get(HeaderWebhookSignature)) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return domainErrors.ErrInvalidSignature
}

func (v *WebhookVerifier) mac(id, ts string, body []byte) []byte {
	m := hmac.New(sha256.New, v.key)
	m.Write([]byte(id))
	m.Write([]byte{'.'})
	m.Write([]byte(ts))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}

// VerifyWebhook rejects deliveries with a missing or wrong signature with
// 401. A nil verifier disables the check.
func VerifyWebhook(v *WebhookVerifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
			if err != nil {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "body_too_large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := v.Verify(r.Header, body); err != nil {
				logger.Warn().
					Str("webhook_id", r.Header.Get(HeaderWebhookID)).
					Str("remote_addr", r.RemoteAddr).
					Msg("Rejected webhook with invalid signature")
				writeJSONError(w, http.StatusUnauthorized, err.Error(), "invalid_signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
