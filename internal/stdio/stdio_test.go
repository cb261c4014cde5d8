package stdio_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/myrjola/dossier/internal/protocol"
	"github.com/myrjola/dossier/internal/repositories"
	"github.com/myrjola/dossier/internal/sqlite"
	"github.com/myrjola/dossier/internal/stdio"
	"github.com/myrjola/dossier/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) *protocol.Dispatcher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := testhelpers.NewLogger(io.Discard)
	dbs, err := sqlite.NewDatabase(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, dbs.Close())
	})
	dispatcher, err := protocol.NewDispatcher(repositories.NewDossierRepository(dbs, logger), logger, nil)
	require.NoError(t, err)
	return dispatcher
}

func readLines(t *testing.T, out *bytes.Buffer) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestServe(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"method":"tools/call","params":{"name":"dossier_create","arguments":{"dossier_id":"p1","player_name":"Ada"}}}`,
		``,
		`   `,
		`{"method":`,
		`{"method":"bogus"}`,
		`{"method":"tools/call","params":{"name":"dossier_delete","arguments":{"dossier_id":"p1"}}}`,
	}, "\n"))
	var out bytes.Buffer

	err := stdio.Serve(context.Background(), newDispatcher(t), in, &out, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)

	lines := readLines(t, &out)
	require.Len(t, lines, 4, "one response per non-blank line")

	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &created))
	require.Equal(t, true, created["success"])

	var parseErr map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &parseErr))
	require.True(t, strings.HasPrefix(parseErr["error"], "parse error: "), parseErr["error"])

	require.JSONEq(t, `{"error":"unknown method: bogus"}`, lines[2])
	require.JSONEq(t, `{"success":true,"deleted":"p1"}`, lines[3])
}

func TestServe_EmptyInput(t *testing.T) {
	var out bytes.Buffer
	err := stdio.Serve(context.Background(), newDispatcher(t), strings.NewReader(""), &out, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	require.Empty(t, out.String())
}

func TestServe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := stdio.Serve(ctx, newDispatcher(t), strings.NewReader(`{"method":"tools/list"}`+"\n"), &out,
		testhelpers.NewLogger(io.Discard))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, out.String())
}

func TestServe_LineTooLong(t *testing.T) {
	huge := `{"method":"bogus","params":{"pad":"` + strings.Repeat("x", stdio.MaxLineSize) + `"}}`
	in := strings.NewReader(`{"method":"bogus"}` + "\n" + huge + "\n")
	var out bytes.Buffer

	err := stdio.Serve(context.Background(), newDispatcher(t), in, &out, testhelpers.NewLogger(io.Discard))
	require.ErrorIs(t, err, bufio.ErrTooLong)
	require.Len(t, readLines(t, &out), 1, "requests before the oversized line are answered")
}
