package api

import (
	"io"
	"net/http"

	"github.com/arelis/hub"
	"github.com/arelis/hub/signature"
)

// receive verifies the raw body against X-Webhook-Signature before any
// parsing. The body must be read verbatim for the HMAC to match.
func (a *Handler) receive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, hub.ValidationError("api: invalid request body", "body", "could not be read"))
		return
	}

	res, err := a.receiver.Receive(r.Context(), r.PathValue("id"), r.Header.Get(signature.Header), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
