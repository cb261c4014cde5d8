package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/dossier/internal/metrics"
	"github.com/myrjola/dossier/internal/models"
	"github.com/myrjola/dossier/internal/protocol"
	"github.com/myrjola/dossier/internal/repositories"
	"github.com/myrjola/dossier/internal/sqlite"
	"github.com/myrjola/dossier/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// newTestApplication wires an application over an in-memory database without starting a listener.
func newTestApplication(t *testing.T) *application {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := testhelpers.NewLogger(io.Discard)
	dbs, err := sqlite.NewDatabase(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, dbs.Close())
	})
	m := metrics.New()
	dispatcher, err := protocol.NewDispatcher(repositories.NewDossierRepository(dbs, logger), logger, m)
	require.NoError(t, err)
	return &application{
		logger:         logger,
		dispatcher:     dispatcher,
		metrics:        m,
		requestTimeout: 5 * time.Second,
	}
}

func Test_application_mcp_bodyTooLarge(t *testing.T) {
	app := newTestApplication(t)

	huge := bytes.Repeat([]byte("x"), maxBodySize+1)
	rec := httptest.NewRecorder()
	app.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(huge)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.JSONEq(t, `{"error":"request body too large"}`, rec.Body.String())
}

func Test_application_recoverPanic(t *testing.T) {
	app := newTestApplication(t)
	handler := app.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret connection string")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	require.Equal(t, "close", rec.Header().Get("Connection"))
}

// panickingStore panics on every call.
type panickingStore struct{}

func (panickingStore) Get(context.Context, string) (*models.Dossier, error) { panic("get exploded") }
func (panickingStore) Create(context.Context, *models.Dossier) (*models.Dossier, error) {
	panic("create exploded")
}
func (panickingStore) Update(context.Context, string, models.Data) (*models.Dossier, error) {
	panic("update exploded")
}
func (panickingStore) Delete(context.Context, string) (bool, error)   { panic("delete exploded") }
func (panickingStore) List(context.Context) ([]models.Dossier, error) { panic("list exploded") }

func Test_application_mcp_internalError(t *testing.T) {
	app := newTestApplication(t)
	dispatcher, err := protocol.NewDispatcher(panickingStore{}, app.logger, app.metrics)
	require.NoError(t, err)
	app.dispatcher = dispatcher

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"method":"tools/call","params":{"name":"dossier_list"}}`)
	app.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", body))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())

	// Dispatcher error responses other than internal failures keep status 200.
	rec = httptest.NewRecorder()
	body = strings.NewReader(`{"method":"bogus"}`)
	app.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"error":"unknown method: bogus"}`, rec.Body.String())
}

func Test_application_writeJSON_encodeFailure(t *testing.T) {
	app := newTestApplication(t)

	rec := httptest.NewRecorder()
	app.writeJSON(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil), http.StatusOK,
		map[string]any{"bad": make(chan int)})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
