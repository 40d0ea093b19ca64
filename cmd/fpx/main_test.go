package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClientAndTicketCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FPX_DB_URL", "sqlite://"+filepath.Join(dir, "fpx.db"))
	t.Setenv("FPX_LOG_LEVEL", "error")

	out, err := run(t, "db", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")

	out, err = run(t, "client", "add", "portal")
	require.NoError(t, err)
	assert.Contains(t, out, "Client created: portal - ")
	firstID := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "Client created: portal - "))

	_, err = run(t, "client", "add", "portal")
	assert.ErrorContains(t, err, "already exists")

	out, err = run(t, "client", "regenerate", "portal")
	require.NoError(t, err)
	assert.NotContains(t, out, firstID)

	out, err = run(t, "client", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "portal: ")

	_, err = run(t, "client", "drop", "portal")
	require.NoError(t, err)
	_, err = run(t, "client", "drop", "portal")
	assert.ErrorContains(t, err, "does not exist")

	out, err = run(t, "ticket", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0 tickets")

	_, err = run(t, "ticket", "drop")
	assert.Error(t, err)
	out, err = run(t, "ticket", "drop", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 tickets")
}
