package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"lumichat/internal/database"
	"lumichat/internal/models"
)

// StatsWindow is how long call records are kept before GC drops them.
const StatsWindow = 24 * time.Hour

// StatsService records per-attempt API call outcomes in a rolling
// 24-hour window, keyed by (config, key index, key hash).
type StatsService struct {
	db *database.DB
}

// NewStatsService creates a new stats service.
func NewStatsService(db *database.DB) *StatsService {
	return &StatsService{db: db}
}

// HashKey derives the short stable fingerprint stored for an API key.
// The key itself is never persisted in the stats table.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:16]
}

// Record stores one attempt outcome.
func (s *StatsService) Record(configID string, keyIndex int, keyHash string, success bool) error {
	_, err := s.db.Exec(`
		INSERT INTO call_stats (config_id, key_index, key_hash, success, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, configID, keyIndex, keyHash, success, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record call stat: %w", err)
	}
	return nil
}

// RecentCounts aggregates the last 24 hours of records for one config,
// grouped per key.
func (s *StatsService) RecentCounts(configID string) ([]models.KeyStatSummary, error) {
	cutoff := time.Now().Add(-StatsWindow)
	rows, err := s.db.Query(`
		SELECT key_index, key_hash,
			SUM(CASE WHEN success THEN 1 ELSE 0 END),
			SUM(CASE WHEN success THEN 0 ELSE 1 END)
		FROM call_stats
		WHERE config_id = ? AND timestamp >= ?
		GROUP BY key_index, key_hash
		ORDER BY key_index
	`, configID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query call stats: %w", err)
	}
	defer rows.Close()

	var summaries []models.KeyStatSummary
	for rows.Next() {
		s := models.KeyStatSummary{ConfigID: configID}
		if err := rows.Scan(&s.KeyIndex, &s.KeyHash, &s.Success, &s.Failure); err != nil {
			return nil, fmt.Errorf("failed to scan call stat: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GC drops records older than the rolling window. Scheduled hourly.
func (s *StatsService) GC() error {
	cutoff := time.Now().Add(-StatsWindow)
	result, err := s.db.Exec(`DELETE FROM call_stats WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to GC call stats: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("🧹 [STATS] Dropped %d call records older than %s", n, StatsWindow)
	}
	return nil
}
