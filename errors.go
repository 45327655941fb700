package hub

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/store"
	"github.com/arelis/hub/webhook"
)

// Sentinel errors returned by Hub operations.
var (
	// ErrNoStore is returned when a Hub is created without a store.
	ErrNoStore = errors.New("hub: store is required")

	// ErrStore marks every failed persistence call surfaced to a producer.
	ErrStore = errors.New("hub: store error")

	ErrWebhookNotFound = webhook.ErrNotFound
	ErrEventNotFound   = event.ErrNotFound
	ErrAgentNotFound   = agent.ErrNotFound
	ErrRetryNotFound   = delivery.ErrRetryNotFound
	ErrStoreClosed     = store.ErrClosed
	ErrMigrationFailed = store.ErrMigrationFailed
)

// Text codes carried by go-errors envelopes and rendered in API error bodies.
const (
	CodeValidation       = "validation_error"
	CodeMissingSignature = "missing_signature"
	CodeUnauthorized     = "unauthorized"
	CodeNotFound         = "not_found"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
)

// StoreError wraps a persistence failure. The result matches ErrStore and
// the original cause with errors.Is.
func StoreError(err error, message string) error {
	return goerrors.Wrap(errors.Join(ErrStore, err), goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeInternal)
}

// ValidationError reports one invalid field.
func ValidationError(message, field, detail string) error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: detail,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeValidation)
}

// AuthError reports a failed authentication check, such as a signature
// that does not verify.
func AuthError(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(CodeUnauthorized)
}

// NotFoundError wraps a lookup miss so callers keep errors.Is on the sentinel.
func NotFoundError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryNotFound, message).
		WithCode(http.StatusNotFound).
		WithTextCode(CodeNotFound)
}
