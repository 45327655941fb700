package api

import (
	"net/http"
	"strings"

	"github.com/xraph/forge"
)

// mapError converts hub errors to Forge HTTP errors.
func mapError(err error) error {
	rich := toEnvelope(err)
	switch rich.Code {
	case http.StatusNotFound:
		return forge.NotFound(rich.Message)
	case http.StatusBadRequest:
		msg := rich.Message
		if fields := rich.AllValidationErrors(); len(fields) > 0 {
			parts := make([]string, 0, len(fields))
			for _, fe := range fields {
				parts = append(parts, fe.Field+": "+fe.Message)
			}
			msg += " (" + strings.Join(parts, "; ") + ")"
		}
		return forge.BadRequest(msg)
	case http.StatusInternalServerError:
		return forge.InternalError(err)
	default:
		return forge.NewHTTPError(rich.Code, rich.Message)
	}
}
