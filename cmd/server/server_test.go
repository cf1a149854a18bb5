package main

import (
	"path/filepath"
	"testing"

	"fenrir/internal/config"
	"fenrir/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRecorder(t *testing.T) {
	r, err := openRecorder(config.StoreConfig{Kind: config.StoreNone})
	require.NoError(t, err)
	assert.Equal(t, store.Nop{}, r)

	dir := t.TempDir()
	r, err = openRecorder(config.StoreConfig{Kind: config.StoreCSV, Dir: dir})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.FileExists(t, filepath.Join(dir, store.OrdersFile))

	r, err = openRecorder(config.StoreConfig{Kind: config.StorePebble, Dir: filepath.Join(dir, "db")})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = openRecorder(config.StoreConfig{Kind: "s3"})
	assert.Error(t, err)
}
