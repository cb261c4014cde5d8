package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/protocol"
)

// writeJSON encodes v before writing anything so that an encoding failure can still become a 500.
func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// serverError logs err in full and answers with a generic JSON error.
func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))

	body, _ := json.Marshal(protocol.NewErrorResponse("internal server error"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(append(body, '\n'))
}
