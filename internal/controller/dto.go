package controller

import (
	"github.com/cassiomorais/reconciler/internal/service"
)

// --- Request DTOs ---

// WebhookEvent is the envelope of every provider delivery.
type WebhookEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// CheckoutRequest carries what the checkout page collects before handing
// the buyer to the provider. The body is optional.
type CheckoutRequest struct {
	Phone string `json:"phone" validate:"omitempty,e164"`
}

// --- Response DTOs ---

type WebhookResponse struct {
	Message string `json:"message"`
}

type CheckoutResponse struct {
	PaymentID      string `json:"payment_id"`
	PlanSlug       string `json:"plan_slug"`
	ExternalPlanID string `json:"external_plan_id"`
	PlanName       string `json:"plan_name"`
}

type PaymentStatusResponse struct {
	Status            string `json:"status"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	ExternalPlanID    string `json:"external_plan_id,omitempty"`
}

type SuccessResponse struct {
	ReceiptID       string `json:"receipt_id"`
	PlanSlug        string `json:"plan_slug"`
	PlanDescription string `json:"plan_description"`
	Status          string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func fromCheckout(c *service.Checkout) *CheckoutResponse {
	return &CheckoutResponse{
		PaymentID:      c.PaymentID,
		PlanSlug:       c.PlanSlug,
		ExternalPlanID: c.ExternalPlanID,
		PlanName:       c.PlanName,
	}
}

func fromPaymentStatus(s *service.PaymentStatus) *PaymentStatusResponse {
	return &PaymentStatusResponse{
		Status:            string(s.Status),
		ExternalPaymentID: s.ExternalPaymentID,
		ExternalPlanID:    s.ExternalPlanID,
	}
}

func fromSuccessDetails(d *service.SuccessDetails) *SuccessResponse {
	return &SuccessResponse{
		ReceiptID:       d.ReceiptID,
		PlanSlug:        d.PlanSlug,
		PlanDescription: d.PlanDescription,
		Status:          d.Status,
	}
}
