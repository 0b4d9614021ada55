// ABOUTME: Tests for persona-bot command helpers
// ABOUTME: Covers config generation, logger setup, store key derivation and run orchestration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/persona-bot/internal/config"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PERSONA_BOT_CONFIG", "/etc/persona-bot.yaml")
	assert.Equal(t, "/etc/persona-bot.yaml", getConfigPath())

	t.Setenv("PERSONA_BOT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "persona-bot", "config.yaml"), getConfigPath())
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg-data")
	assert.Equal(t, filepath.Join("/xdg-data", "persona-bot"), getDataPath())
}

func TestRenderConfig_LoadsBack(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	out, err := renderConfig(initAnswers{
		Homeserver: "https://matrix.example.org",
		UserID:     "@persona:example.org",
		Username:   "persona",
		Password:   "hunter2",
		APIKey:     "${OPENAI_API_KEY}",
		DBPath:     "/var/lib/persona-bot/persona-bot.db",
		HTTPAddr:   "127.0.0.1:8080",
	})
	require.NoError(t, err)

	cfg, err := config.Parse(string(out), false)
	require.NoError(t, err)
	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "persona", cfg.Matrix.Username)
	assert.Empty(t, cfg.Matrix.AccessToken)
	assert.True(t, cfg.Matrix.TypingIndicator)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "/var/lib/persona-bot/persona-bot.db", cfg.Database.Path)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HTTPAddr)
}

func TestRenderConfig_OmitsEmptyServer(t *testing.T) {
	out, err := renderConfig(initAnswers{
		Homeserver:  "https://matrix.org",
		UserID:      "@p:matrix.org",
		AccessToken: "syt_token",
		APIKey:      "sk-x",
		DBPath:      "/tmp/p.db",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "server:")
	assert.NotContains(t, string(out), "password")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.With("component", "test").Warn("shown", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "test", rec["component"])
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug"}, &buf)

	logger.With("component", "matrix").WithGroup("req").Debug("sent", "room", "!r")

	line := buf.String()
	assert.Contains(t, line, "DBG")
	assert.Contains(t, line, "sent")
	assert.Contains(t, line, "component=")
	assert.Contains(t, line, "matrix")
	assert.Contains(t, line, "req.room=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestDeriveStoreKey(t *testing.T) {
	k1, err := deriveStoreKey("EsTc aaaa bbbb", "@a:example.org")
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	again, err := deriveStoreKey("EsTc aaaa bbbb", "@a:example.org")
	require.NoError(t, err)
	assert.Equal(t, k1, again)

	otherUser, err := deriveStoreKey("EsTc aaaa bbbb", "@b:example.org")
	require.NoError(t, err)
	assert.NotEqual(t, k1, otherUser)

	otherKey, err := deriveStoreKey("EsTc cccc dddd", "@a:example.org")
	require.NoError(t, err)
	assert.NotEqual(t, k1, otherKey)

	_, err = deriveStoreKey("", "@a:example.org")
	assert.Error(t, err)
}

func TestCheckDeviceIDMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "crypto.db")

	mismatch, err := checkDeviceIDMismatch(dbPath, "DEVICE1")
	require.NoError(t, err)
	assert.False(t, mismatch, "no database yet")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE crypto_account (device_id TEXT)")
	require.NoError(t, err)

	mismatch, err = checkDeviceIDMismatch(dbPath, "DEVICE1")
	require.NoError(t, err)
	assert.False(t, mismatch, "no account stored yet")

	_, err = db.Exec("INSERT INTO crypto_account (device_id) VALUES ('DEVICE1')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	mismatch, err = checkDeviceIDMismatch(dbPath, "DEVICE1")
	require.NoError(t, err)
	assert.False(t, mismatch)

	mismatch, err = checkDeviceIDMismatch(dbPath, "DEVICE2")
	require.NoError(t, err)
	assert.True(t, mismatch)

	require.NoError(t, removeDatabase(dbPath))
	assert.NoFileExists(t, dbPath)
}

func TestRunAll_StopsOthersOnError(t *testing.T) {
	boom := errors.New("listen failed")

	stopped := make(chan struct{})
	err := runAll(context.Background(),
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		},
	)

	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("second runner was not cancelled")
	}
}

func TestRunAll_CleanShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runAll(ctx,
		func(ctx context.Context) error { <-ctx.Done(); return nil },
		func(ctx context.Context) error { <-ctx.Done(); return nil },
	)
	assert.NoError(t, err)
}
