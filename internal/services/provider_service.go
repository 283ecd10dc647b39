package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lumichat/internal/database"
	"lumichat/internal/models"
)

// ProviderService manages API provider configurations and rotates keys
// round-robin per config.
type ProviderService struct {
	db *database.DB

	mu         sync.Mutex
	keyCursors map[string]int // config ID -> next key index
}

// NewProviderService creates a new provider service.
func NewProviderService(db *database.DB) *ProviderService {
	return &ProviderService{
		db:         db,
		keyCursors: make(map[string]int),
	}
}

// Create inserts a new config, assigning an ID when absent.
func (s *ProviderService) Create(cfg *models.APIConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	keys, err := json.Marshal(cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("failed to serialize api keys: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO api_configs (id, name, base_url, api_keys, model, secondary_model, context_message_count, timeout_ms, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cfg.ID, cfg.Name, cfg.BaseURL, string(keys), cfg.Model, cfg.SecondaryModel, cfg.ContextMessageCount, cfg.TimeoutMs, cfg.IsActive, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api config: %w", err)
	}
	return nil
}

// Update overwrites a config's mutable fields.
func (s *ProviderService) Update(cfg *models.APIConfig) error {
	keys, err := json.Marshal(cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("failed to serialize api keys: %w", err)
	}
	cfg.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE api_configs SET name = ?, base_url = ?, api_keys = ?, model = ?, secondary_model = ?, context_message_count = ?, timeout_ms = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, cfg.Name, cfg.BaseURL, string(keys), cfg.Model, cfg.SecondaryModel, cfg.ContextMessageCount, cfg.TimeoutMs, cfg.IsActive, cfg.UpdatedAt, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update api config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("api config not found")
	}
	return nil
}

// Get returns one config by ID.
func (s *ProviderService) Get(id string) (*models.APIConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, name, base_url, api_keys, model, secondary_model, context_message_count, timeout_ms, is_active, created_at, updated_at
		FROM api_configs WHERE id = ?
	`, id)
	return scanConfig(row)
}

// List returns all configs.
func (s *ProviderService) List() ([]*models.APIConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, name, base_url, api_keys, model, secondary_model, context_message_count, timeout_ms, is_active, created_at, updated_at
		FROM api_configs ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.APIConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// GetActive returns the config marked active, or an error if none is.
func (s *ProviderService) GetActive() (*models.APIConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, name, base_url, api_keys, model, secondary_model, context_message_count, timeout_ms, is_active, created_at, updated_at
		FROM api_configs WHERE is_active = TRUE LIMIT 1
	`)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, fmt.Errorf("no active api config: %w", err)
	}
	return cfg, nil
}

// SetActive marks one config active and deactivates the rest.
func (s *ProviderService) SetActive(id string) error {
	if _, err := s.db.Exec(`UPDATE api_configs SET is_active = FALSE`); err != nil {
		return fmt.Errorf("failed to deactivate configs: %w", err)
	}
	result, err := s.db.Exec(`UPDATE api_configs SET is_active = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to activate config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("api config not found")
	}
	return nil
}

// Delete removes a config.
func (s *ProviderService) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM api_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("api config not found")
	}
	return nil
}

// NextKey returns the next API key for a config, rotating round-robin.
func (s *ProviderService) NextKey(cfg *models.APIConfig) (string, int) {
	if len(cfg.APIKeys) == 0 {
		return "", -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.keyCursors[cfg.ID] % len(cfg.APIKeys)
	s.keyCursors[cfg.ID] = i + 1
	return cfg.APIKeys[i], i
}

func scanConfig(row rowScanner) (*models.APIConfig, error) {
	var cfg models.APIConfig
	var keys string
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.BaseURL, &keys, &cfg.Model, &cfg.SecondaryModel,
		&cfg.ContextMessageCount, &cfg.TimeoutMs, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api config not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api config: %w", err)
	}
	if err := json.Unmarshal([]byte(keys), &cfg.APIKeys); err != nil {
		return nil, fmt.Errorf("failed to parse api keys: %w", err)
	}
	return &cfg, nil
}
