package models

import (
	"encoding/json"
	"time"
)

// Sync key length bounds enforced by the sync blob store.
const (
	SyncKeyMinLen = 6
	SyncKeyMaxLen = 100
)

// SyncBlob is an opaque client state snapshot stored under a user-chosen
// sync key. Last writer wins; the server never interprets Data.
type SyncBlob struct {
	SyncKey   string          `json:"sync_key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SyncKeyStat is the admin-facing summary of one stored blob.
type SyncKeyStat struct {
	SyncKey   string    `json:"sync_key"`
	SizeBytes int       `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidSyncKey reports whether a sync key satisfies the length contract.
func ValidSyncKey(key string) bool {
	return len(key) >= SyncKeyMinLen && len(key) <= SyncKeyMaxLen
}
