package db

import (
	"database/sql"
	"errors"
	"time"
)

// Config keys.
const (
	KeyNodeID    = "node_id"
	KeyWalletKey = "wallet_key"
)

func GetConfig(key string) (string, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&val)
	if err != nil {
		return "", err
	}
	return val, nil
}

// GetConfigOr returns fallback when key is not set.
func GetConfigOr(key, fallback string) (string, error) {
	val, err := GetConfig(key)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	return val, err
}

func SetConfig(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

func DeleteConfig(key string) error {
	_, err := db.Exec(`DELETE FROM config WHERE key = ?`, key)
	return err
}

func GetNodeID() (string, error) {
	return GetConfig(KeyNodeID)
}
