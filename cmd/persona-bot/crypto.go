// ABOUTME: Encryption setup for persona-bot
// ABOUTME: Configures E2EE with recovery key for Matrix rooms using mautrix crypto

package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/hkdf"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"

	"github.com/2389/persona-bot/internal/media"
)

// storeKeyInfo labels keys derived for the crypto store.
const storeKeyInfo = "persona-bot crypto store v1"

// CryptoManager handles Matrix E2EE setup and lifecycle.
type CryptoManager struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// SetupCrypto initializes E2EE for the Matrix client and verifies the
// device with the recovery key. The crypto database lives in dataDir.
// A database left over from another device ID is reset first.
func SetupCrypto(ctx context.Context, client *mautrix.Client, userID, recoveryKey, dataDir string, logger *slog.Logger) (*CryptoManager, error) {
	logger = logger.With("component", "crypto")

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	userSlug := media.Slug(userID)
	dbPath := filepath.Join(dataDir, fmt.Sprintf("matrix-crypto-%s.db", userSlug))
	logger.Info("setting up encryption", "db", dbPath, "user", userSlug)

	storeKey, err := deriveStoreKey(recoveryKey, userID)
	if err != nil {
		return nil, err
	}

	helper, err := initCryptoHelper(ctx, client, storeKey, dbPath, logger)
	if err != nil {
		return nil, err
	}

	// Outgoing messages in encrypted rooms are encrypted through the client
	client.Crypto = helper

	manager := &CryptoManager{helper: helper, logger: logger}

	if err := manager.verifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		// Encryption still works without cross-signing
		logger.Warn("failed to verify with recovery key", "error", err)
		logger.Info("encryption enabled without cross-signing verification")
	} else {
		logger.Info("encryption initialized with cross-signing verification")
	}

	return manager, nil
}

func (cm *CryptoManager) verifyWithRecoveryKey(ctx context.Context, recoveryKey string) error {
	machine := cm.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		return fmt.Errorf("recovery key verification failed: %w", err)
	}
	cm.logger.Info("device verified with recovery key")
	return nil
}

// Close cleans up crypto resources.
func (cm *CryptoManager) Close() error {
	if cm.helper != nil {
		return cm.helper.Close()
	}
	return nil
}

// deriveStoreKey derives the 32-byte pickle key for the crypto store from
// the recovery key, salted with the user ID.
func deriveStoreKey(recoveryKey, userID string) ([]byte, error) {
	if recoveryKey == "" {
		return nil, errors.New("recovery key is required to derive the store key")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(recoveryKey), []byte(userID), []byte(storeKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving store key: %w", err)
	}
	return key, nil
}

// initCryptoHelper creates and initializes the crypto helper. A new login
// gets a new device ID while the store still holds the old device's keys,
// so a mismatched database is removed before init.
func initCryptoHelper(ctx context.Context, client *mautrix.Client, storeKey []byte, dbPath string, logger *slog.Logger) (*cryptohelper.CryptoHelper, error) {
	// Checked before the helper opens the DB to avoid lock contention
	if needsReset, err := checkDeviceIDMismatch(dbPath, client.DeviceID.String()); err != nil {
		logger.Debug("could not check device ID", "error", err)
	} else if needsReset {
		logger.Warn("device ID mismatch detected, resetting crypto database")
		if err := removeDatabase(dbPath); err != nil {
			return nil, err
		}
		logger.Info("crypto database reset")
	}

	helper, err := cryptohelper.NewCryptoHelper(client, storeKey, dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	return helper, nil
}

func removeDatabase(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing old crypto database: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

// checkDeviceIDMismatch reports whether an existing crypto database
// belongs to a different device than currentDeviceID.
func checkDeviceIDMismatch(dbPath, currentDeviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	// mautrix keeps the device in crypto_account
	var storedDeviceID string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&storedDeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return storedDeviceID != currentDeviceID, nil
}
