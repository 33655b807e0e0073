package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/repository"
)

func setup(t *testing.T) (*repository.FileBackend, func(args ...string) (string, error)) {
	t.Helper()
	backend, err := repository.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	open := func(*storageOptions) (repository.Backend, error) {
		return nopCloser{backend}, nil
	}
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := newRootCommand(open, &out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}
	return backend, run
}

// nopCloser keeps the backend usable across several command runs.
type nopCloser struct{ repository.Backend }

func (nopCloser) Close() error { return nil }

func TestShow_Empty(t *testing.T) {
	_, run := setup(t)

	out, err := run("show")
	require.NoError(t, err)
	assert.Contains(t, out, "purchased.json: nothing stored")
}

func TestAddRevokeShow(t *testing.T) {
	backend, run := setup(t)

	_, err := run("add", "com.app.pro", "com.app.coins")
	require.NoError(t, err)
	_, err = run("revoke", "com.app.coins")
	require.NoError(t, err)

	data, err := backend.Read(context.Background(), iap.DefaultLocation)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"product_ids":["com.app.pro"]}`, string(data))

	out, err := run("show", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"purchased.json","exists":true,"version":1,"product_ids":["com.app.pro"]}`, out)

	out, err = run("show", "--output", "yaml")
	require.NoError(t, err)
	var view recordView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, []string{"com.app.pro"}, view.ProductIDs)
}

func TestAdd_RejectsInvalidID(t *testing.T) {
	_, run := setup(t)
	_, err := run("add", "")
	assert.Error(t, err)
}

func TestAdd_RefusesCorruptRecord(t *testing.T) {
	backend, run := setup(t)
	require.NoError(t, backend.Write(context.Background(), iap.DefaultLocation, []byte("not json")))

	_, err := run("add", "com.app.pro")
	assert.ErrorIs(t, err, iap.ErrLoadCorrupted)

	data, err := backend.Read(context.Background(), iap.DefaultLocation)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(data))
}

func TestMigrate_LegacyRecord(t *testing.T) {
	backend, run := setup(t)
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, "legacy.json", []byte(`["b","a","b",42]`)))

	out, err := run("migrate", "--location", "legacy.json")
	require.NoError(t, err)
	assert.Contains(t, out, "version 0 -> 1, 2 products, 1 dropped")

	data, err := backend.Read(ctx, "legacy.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"product_ids":["a","b"]}`, string(data))

	out, err = run("migrate", "--location", "legacy.json")
	require.NoError(t, err)
	assert.Contains(t, out, "already at version 1")
}

func TestShow_UnknownFormat(t *testing.T) {
	_, run := setup(t)
	_, err := run("show", "-o", "xml")
	assert.Error(t, err)
}
