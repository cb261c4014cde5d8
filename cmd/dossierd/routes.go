package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /mcp", jsonContentType(timeoutHandler(http.HandlerFunc(app.mcp), app.requestTimeout)))
	mux.HandleFunc("GET /api/healthy", app.healthy)
	mux.Handle("GET /metrics", app.metrics.Handler())

	return alice.New(app.recoverPanic, app.logRequest, secureHeaders, app.recordMetrics).Then(mux)
}
