package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pricebot/internal/storage"
)

func TestMigrateCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pricebot.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+dbPath+"\n"), 0o600))

	rootCmd.SetArgs([]string{"migrate", "--config", cfgPath})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.ExpectedSchemaVersion, version)

	rootCmd.SetArgs([]string{"migrate", "--status", "--config", cfgPath})
	assert.NoError(t, rootCmd.ExecuteContext(context.Background()))
}

func TestServeRequiresToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("PRICEBOT_TELEGRAM_TOKEN", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+filepath.Join(dir, "db.sqlite")+"\n"), 0o600))

	rootCmd.SetArgs([]string{"serve", "--config", cfgPath})
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}
