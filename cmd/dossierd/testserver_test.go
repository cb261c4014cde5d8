package main

import (
	"context"
	"io"
	"testing"

	"github.com/myrjola/dossier/internal/e2etest"
	"github.com/stretchr/testify/require"
)

func testLookupEnv(key string) (string, bool) {
	switch key {
	case "DOSSIER_ADDR":
		return "localhost:0", true
	case "DOSSIER_SQLITE_URL":
		return ":memory:", true
	default:
		return "", false
	}
}

// startTestServer starts the server on a random port with an in-memory database and stops it when the test ends.
func startTestServer(t *testing.T, w io.Writer, lookupEnv func(string) (string, bool)) *e2etest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, w, lookupEnv, run)
	require.NoError(t, err)
	return server
}
