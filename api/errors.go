package api

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/arelis/hub"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details []fieldDetails `json:"details,omitempty"`
}

type fieldDetails struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeError renders err as {"error":{"code","message","details"}}.
func (a *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rich := toEnvelope(err)
	if rich.Code >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "api request failed",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	body := errorBody{Code: rich.TextCode, Message: rich.Message}
	for _, fe := range rich.AllValidationErrors() {
		body.Details = append(body.Details, fieldDetails{Field: fe.Field, Message: fe.Message})
	}
	writeJSON(w, rich.Code, errorResponse{Error: body})
}

// toEnvelope maps any error to a go-errors value with an HTTP status and a
// text code. Causes of internal errors never reach the message.
func toEnvelope(err error) *goerrors.Error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		out := *rich
		if out.Code == 0 {
			out.Code = statusFor(out.Category)
		}
		if strings.TrimSpace(out.TextCode) == "" {
			out.TextCode = textCodeFor(out.Category)
		}
		if strings.TrimSpace(out.Message) == "" || out.Code >= http.StatusInternalServerError {
			out.Message = "internal server error"
		}
		return &out
	}

	switch {
	case errors.Is(err, hub.ErrWebhookNotFound),
		errors.Is(err, hub.ErrEventNotFound),
		errors.Is(err, hub.ErrAgentNotFound),
		errors.Is(err, hub.ErrRetryNotFound):
		return goerrors.New(err.Error(), goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(hub.CodeNotFound)
	default:
		return goerrors.New("internal server error", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(hub.CodeInternal)
	}
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func textCodeFor(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return hub.CodeValidation
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return hub.CodeUnauthorized
	case goerrors.CategoryNotFound:
		return hub.CodeNotFound
	case goerrors.CategoryRateLimit:
		return hub.CodeRateLimited
	default:
		return hub.CodeInternal
	}
}
