package main

import (
	"io"
	"net/http"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/protocol"
	"github.com/myrjola/dossier/internal/stdio"
)

// maxBodySize matches the longest line accepted by the stdio transport.
const maxBodySize = stdio.MaxLineSize

// mcp handles one protocol request. Dispatcher errors are reported in the body with status 200, except malformed
// envelopes (400) and internal failures (500).
func (app *application) mcp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			app.writeJSON(w, r, http.StatusRequestEntityTooLarge, protocol.NewErrorResponse("request body too large"))
			return
		}
		app.writeJSON(w, r, http.StatusBadRequest, protocol.NewErrorResponse("parse error: could not read body"))
		return
	}

	resp, err := app.dispatcher.HandleRaw(r.Context(), body)
	switch {
	case errors.Is(err, protocol.ErrInternal):
		app.writeJSON(w, r, http.StatusInternalServerError, resp)
		return
	case err != nil:
		app.writeJSON(w, r, http.StatusBadRequest, resp)
		return
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}
