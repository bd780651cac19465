package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxErrorBody = 64 << 10

// MembershipCanceller ends a provider membership immediately.
type MembershipCanceller interface {
	CancelMembership(ctx context.Context, membershipID string) bool
}

// APIError is a non-2xx answer from the membership API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("membership api returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the provider may accept the same request later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type ClientOption func(*MembershipClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(m *MembershipClient) { m.http = c }
}

// WithRetryOptions appends options to every retry loop, e.g. a fake timer.
func WithRetryOptions(opts ...retrygo.Option) ClientOption {
	return func(m *MembershipClient) { m.retryOpts = append(m.retryOpts, opts...) }
}

// MembershipClient calls the provider's membership API with a bounded retry
// budget behind a circuit breaker.
type MembershipClient struct {
	cfg       config.ProviderConfig
	policy    retry.Policy
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[struct{}]
	metrics   *observability.Metrics
	logger    zerolog.Logger
	retryOpts []retrygo.Option
}

func NewMembershipClient(cfg config.ProviderConfig, logger zerolog.Logger, metrics *observability.Metrics, opts ...ClientOption) *MembershipClient {
	name := cfg.Name
	if name == "" {
		name = "membership-api"
	}
	logger = observability.Component(logger, "membership_client")

	c := &MembershipClient{
		cfg:     cfg,
		policy:  cfg.RetryPolicy(),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(name, cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout, isProviderFailure, metrics, logger)
	return c
}

// CancelMembership asks the provider to end the membership immediately. It
// returns true on a 2xx answer and false once the retry budget is spent,
// the provider rejects the request, or the client is not configured.
// Only transport errors, 429 and 5xx answers are retried.
func (c *MembershipClient) CancelMembership(ctx context.Context, membershipID string) bool {
	log := c.logger.With().Str("membership_id", membershipID).Logger()

	if c.cfg.APIKey == "" {
		log.Warn().Msg("Membership API key not configured, skipping cancellation")
		c.observe("not_configured", 0)
		return false
	}
	if membershipID == "" {
		log.Warn().Msg("No membership id, skipping cancellation")
		c.observe("skipped", 0)
		return false
	}

	ctx, span := observability.Tracer().Start(ctx, "MembershipClient.CancelMembership")
	defer span.End()
	span.SetAttributes(attribute.String("membership.id", membershipID))

	endpoint := fmt.Sprintf("%s/memberships/%s/cancel", strings.TrimRight(c.cfg.APIURL, "/"), url.PathEscape(membershipID))

	attempt := 0
	err := retry.Do(ctx, c.policy, func() error {
		attempt++
		err := c.attempt(ctx, endpoint)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Membership cancellation attempt failed")
		}
		return err
	}, c.retryOpts...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Int("attempts", attempt).Msg("Failed to cancel membership")
		return false
	}

	log.Info().Int("attempts", attempt).Msg("Membership cancelled")
	return true
}

func (c *MembershipClient) attempt(ctx context.Context, endpoint string) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, endpoint)
	})

	var apiErr *APIError
	switch {
	case err == nil:
		c.observe("success", time.Since(start))
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.observe("circuit_open", 0)
		return retry.Unrecoverable(err)
	case errors.As(err, &apiErr) && !apiErr.Retryable():
		c.observe("rejected", time.Since(start))
		return retry.Unrecoverable(err)
	default:
		c.observe("error", time.Since(start))
		return err
	}
}

var cancelBody = []byte(`{"cancellation_mode":"immediate"}`)

func (c *MembershipClient) post(ctx context.Context, endpoint string) error {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(cancelBody))
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
}

func (c *MembershipClient) observe(outcome string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderCallsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		c.metrics.ProviderCallDuration.Observe(d.Seconds())
	}
}

func isProviderFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// errorMessage digs the human readable reason out of an error body:
// error.message, then error, then message.
func errorMessage(body []byte) string {
	const unknown = "Unknown error"

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return unknown
	}

	if raw, ok := doc["error"]; ok {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		if string(raw) != "null" {
			return string(raw)
		}
	}
	if raw, ok := doc["message"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return unknown
}
