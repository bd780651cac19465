package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, CheckoutResponse{PaymentID: "01J", PlanSlug: "guidance"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"payment_id":"01J","plan_slug":"guidance","external_plan_id":"","plan_name":""}`, w.Body.String())
}

func TestWriteError_Mappings(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"payment not found", domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
		{"unknown plan", domainErrors.ErrPlanNotFound, http.StatusNotFound, "invalid_plan"},
		{"plan without provider id", domainErrors.ErrPlanNotConfigured, http.StatusUnprocessableEntity, "plan_not_configured"},
		{"missing email", domainErrors.ErrMissingBuyerEmail, http.StatusBadRequest, "missing_email"},
		{"bad signature", domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{"wrapped", fmt.Errorf("lookup: %w", domainErrors.ErrPlanNotFound), http.StatusNotFound, "invalid_plan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
		})
	}
}

func TestWriteError_PlanNotConfiguredMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.ErrPlanNotConfigured)

	assert.Equal(t, "Plan not configured. Please contact support.", decodeError(t, w).Error)
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("plan_id", "is required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Contains(t, resp.Error, "plan_id")
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("custom_error", "custom error message", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "custom_error", resp.Code)
	assert.Equal(t, "custom error message", resp.Error)
}

func TestWriteError_UnknownErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "internal_error", resp.Code)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantPhone string
		wantField string
	}{
		{name: "valid phone", body: `{"phone":"+15551234567"}`, wantPhone: "+15551234567"},
		{name: "empty body", body: ``},
		{name: "empty object", body: `{}`},
		{name: "invalid JSON", body: `{nope}`, wantField: "body"},
		{name: "malformed phone", body: `{"phone":"555-1234"}`, wantField: "Phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/checkout/guidance", strings.NewReader(tt.body))

			var dst CheckoutRequest
			err := decodeAndValidate(req, &dst)

			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPhone, dst.Phone)
				return
			}
			var vErr *domainErrors.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
