package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/myrjola/dossier/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func Test_runStdio(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"method":"tools/call","params":{"name":"dossier_create","arguments":{"dossier_id":"p1","player_name":"Ada"}}}`,
		`{"method":"resources/read","params":{"uri":"dossier://p1"}}`,
		`not json`,
	}, "\n"))
	var out bytes.Buffer

	err := runStdio(context.Background(), testhelpers.NewLogger(io.Discard), testLookupEnv, in, &out)
	require.NoError(t, err)

	var lines []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], `"success":true`)
	require.Contains(t, lines[1], `"player_name":"Ada"`)
	require.Contains(t, lines[2], `"error":"parse error: `)
}

func Test_run_invalidConfig(t *testing.T) {
	err := run(context.Background(), testhelpers.NewLogger(io.Discard), func(key string) (string, bool) {
		if key == "DOSSIER_STORE" {
			return "mongo", true
		}
		return "", false
	})
	require.ErrorIs(t, err, errUnknownStore)
}

func Test_versionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "dossierd dev\n", out.String())
}
