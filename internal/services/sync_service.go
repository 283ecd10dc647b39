package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lumichat/internal/database"
	"lumichat/internal/models"
)

// ErrSyncKeyNotFound is returned when no blob exists under a key.
var ErrSyncKeyNotFound = fmt.Errorf("sync key not found")

// ErrInvalidSyncKey is returned when a key violates the length contract.
var ErrInvalidSyncKey = fmt.Errorf("sync key must be %d-%d characters", models.SyncKeyMinLen, models.SyncKeyMaxLen)

// SyncService stores opaque client state blobs keyed by user-chosen
// sync keys. Last writer wins; the server never looks inside Data.
type SyncService struct {
	db *database.DB
}

// NewSyncService creates a new sync service.
func NewSyncService(db *database.DB) *SyncService {
	return &SyncService{db: db}
}

// Upload overwrites the blob stored under key. The key must already
// exist; clients create keys through the admin surface.
func (s *SyncService) Upload(key string, data json.RawMessage) error {
	if !models.ValidSyncKey(key) {
		return ErrInvalidSyncKey
	}
	res, err := s.db.Exec(
		`UPDATE sync_blobs SET data = ?, updated_at = ? WHERE sync_key = ?`,
		string(data), time.Now(), key,
	)
	if err != nil {
		return fmt.Errorf("failed to store sync blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSyncKeyNotFound
	}
	log.Printf("☁️ [SYNC] Stored %d bytes under key %s", len(data), maskKey(key))
	return nil
}

// Download returns the blob stored under key.
func (s *SyncService) Download(key string) (*models.SyncBlob, error) {
	if !models.ValidSyncKey(key) {
		return nil, ErrInvalidSyncKey
	}
	var blob models.SyncBlob
	var data string
	err := s.db.QueryRow(
		`SELECT sync_key, data, updated_at FROM sync_blobs WHERE sync_key = ?`, key,
	).Scan(&blob.SyncKey, &data, &blob.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSyncKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync blob: %w", err)
	}
	blob.Data = json.RawMessage(data)
	return &blob, nil
}

// CreateKey registers a new empty sync key.
func (s *SyncService) CreateKey(key string) error {
	if !models.ValidSyncKey(key) {
		return ErrInvalidSyncKey
	}
	_, err := s.db.Exec(
		`INSERT INTO sync_blobs (sync_key, data, updated_at) VALUES (?, '', ?)
		 ON CONFLICT (sync_key) DO NOTHING`,
		key, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync key: %w", err)
	}
	return nil
}

// DeleteKey removes a sync key and its blob.
func (s *SyncService) DeleteKey(key string) error {
	res, err := s.db.Exec(`DELETE FROM sync_blobs WHERE sync_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete sync key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSyncKeyNotFound
	}
	return nil
}

// Stats lists every stored key with blob size and last write time.
func (s *SyncService) Stats() ([]models.SyncKeyStat, error) {
	rows, err := s.db.Query(
		`SELECT sync_key, LENGTH(data), updated_at FROM sync_blobs ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync keys: %w", err)
	}
	defer rows.Close()

	var stats []models.SyncKeyStat
	for rows.Next() {
		var st models.SyncKeyStat
		if err := rows.Scan(&st.SyncKey, &st.SizeBytes, &st.UpdatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// maskKey keeps sync keys out of logs.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}
