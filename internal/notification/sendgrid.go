package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailSender is the part of *sendgrid.Client the notifier uses.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier delivers notifications through the SendGrid v3 API.
type SendGridNotifier struct {
	client  mailSender
	cfg     config.NotificationConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewSendGridNotifier(cfg config.NotificationConfig, logger zerolog.Logger, metrics *observability.Metrics) *SendGridNotifier {
	return newSendGridNotifier(sendgrid.NewSendClient(cfg.SendGridAPIKey), cfg, logger, metrics)
}

func newSendGridNotifier(client mailSender, cfg config.NotificationConfig, logger zerolog.Logger, metrics *observability.Metrics) *SendGridNotifier {
	return &SendGridNotifier{
		client:  client,
		cfg:     cfg,
		metrics: metrics,
		logger:  observability.Component(logger, "notifier"),
	}
}

// New returns a SendGrid notifier, or a logging one when no API key is set.
func New(cfg config.NotificationConfig, logger zerolog.Logger, metrics *observability.Metrics) Notifier {
	if cfg.SendGridAPIKey == "" {
		logger.Warn().Msg("SendGrid API key not configured, notifications are only logged")
		return NewLogNotifier(logger)
	}
	return NewSendGridNotifier(cfg, logger, metrics)
}

func (s *SendGridNotifier) SendBuyerConfirmation(ctx context.Context, n PurchaseNotice) error {
	if n.Buyer.Email == "" {
		return fmt.Errorf("buyer confirmation for payment %s: no buyer address", n.PaymentID)
	}
	msg, err := buyerConfirmation(n, s.brand())
	if err != nil {
		return err
	}
	return s.send(ctx, "buyer_confirmation", n.Buyer.Name, n.Buyer.Email, msg)
}

// SendOperatorNotice mails the operator and, when configured and distinct,
// the support address.
func (s *SendGridNotifier) SendOperatorNotice(ctx context.Context, n PurchaseNotice) error {
	recipients := s.operatorRecipients()
	if len(recipients) == 0 {
		s.logger.Warn().Str("payment_id", n.PaymentID).Msg("No operator address configured, skipping purchase notice")
		return nil
	}

	msg, err := operatorNotice(n, s.brand())
	if err != nil {
		return err
	}
	var errs []error
	for _, to := range recipients {
		if err := s.send(ctx, "operator_notice", "", to, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SendGridNotifier) SendCancellationAlert(ctx context.Context, a CancellationAlert) error {
	if s.cfg.OperatorAddress == "" {
		s.logger.Warn().Str("payment_id", a.PaymentID).Msg("No operator address configured, skipping cancellation alert")
		return nil
	}
	kind := "cancellation_alert"
	if a.Permanent {
		kind = "cancellation_alert_permanent"
	}
	msg, err := cancellationAlert(a)
	if err != nil {
		return err
	}
	return s.send(ctx, kind, "", s.cfg.OperatorAddress, msg)
}

func (s *SendGridNotifier) operatorRecipients() []string {
	var out []string
	if s.cfg.OperatorAddress != "" {
		out = append(out, s.cfg.OperatorAddress)
	}
	if s.cfg.SupportAddress != "" && !strings.EqualFold(s.cfg.SupportAddress, s.cfg.OperatorAddress) {
		out = append(out, s.cfg.SupportAddress)
	}
	return out
}

func (s *SendGridNotifier) brand() string {
	if s.cfg.FromName != "" {
		return s.cfg.FromName
	}
	return s.cfg.FromAddress
}

func (s *SendGridNotifier) send(ctx context.Context, kind, toName, toAddr string, m message) error {
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromAddress)
	to := mail.NewEmail(toName, toAddr)
	msg := mail.NewSingleEmail(from, m.Subject, to, m.Plain, m.HTML)
	if s.cfg.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}

	resp, err := s.client.SendWithContext(ctx, msg)
	if err == nil && resp != nil && resp.StatusCode >= 300 {
		err = fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	if err != nil {
		s.record(kind, "error")
		return fmt.Errorf("send %s to %s: %w", kind, toAddr, err)
	}

	s.record(kind, "sent")
	s.logger.Info().Str("kind", kind).Str("to", toAddr).Msg("Notification sent")
	return nil
}

func (s *SendGridNotifier) record(kind, status string) {
	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues(kind, status).Inc()
	}
}
