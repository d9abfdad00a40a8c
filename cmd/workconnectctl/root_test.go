package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"migrate"},
		{"migrate", "status"},
		{"notifications", "sweep"},
		{"workers", "create"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestWorkersCreateValidatesFlags(t *testing.T) {
	err := run("workers", "create", "--name", "Asha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker")

	err = run("workers", "create", "--worker", "not-a-uuid", "--name", "Asha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --worker")
}

func TestWorkersCreateWithSQLite(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENV", "development")
	t.Setenv("SQLITE_PATH", t.TempDir()+"/ctl.db")

	err := run("workers", "create", "--worker", "0190a3c4-0000-7000-8000-000000000001", "--name", "Asha")
	require.NoError(t, err)
}

func TestMigrateNeedsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENV", "development")

	err := run("migrate")
	assert.ErrorIs(t, err, errNoDatabaseURL)
}
