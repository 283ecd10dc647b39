package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lumichat/internal/database"
	"lumichat/internal/models"
	"lumichat/internal/prompt"
)

// Settings keys backing the memory store.
const (
	settingGlobalMemory = "global_memory"
	settingMusicNow     = "music_now"
)

// MemoryService is the read/write store for the three memory layers:
// global memory, per-character memory, and per-conversation memory
// tables. Reads are side-effect-free.
type MemoryService struct {
	db *database.DB
}

// NewMemoryService creates a new memory service.
func NewMemoryService(db *database.DB) *MemoryService {
	return &MemoryService{db: db}
}

// GetGlobalMemory returns the memory text shared across all actors.
func (s *MemoryService) GetGlobalMemory() (string, error) {
	return s.getSetting(settingGlobalMemory)
}

// SetGlobalMemory replaces the shared memory text.
func (s *MemoryService) SetGlobalMemory(content string) error {
	return s.setSetting(settingGlobalMemory, content)
}

// GetCharacterMemory returns the memory text visible only when the given
// actor is the speaker.
func (s *MemoryService) GetCharacterMemory(actorID string) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM character_memories WHERE actor_id = ?`, actorID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get character memory: %w", err)
	}
	return content, nil
}

// SetCharacterMemory replaces an actor's memory text.
func (s *MemoryService) SetCharacterMemory(actorID, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO character_memories (actor_id, content) VALUES (?, ?)
		ON CONFLICT (actor_id) DO UPDATE SET content = excluded.content
	`, actorID, content)
	if err != nil {
		return fmt.Errorf("failed to set character memory: %w", err)
	}
	return nil
}

// GetMemoryTable returns an actor's memory table, falling back to the
// default template when absent.
func (s *MemoryService) GetMemoryTable(actorID string) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM memory_tables WHERE actor_id = ?`, actorID).Scan(&content)
	if err == sql.ErrNoRows {
		return prompt.DefaultMemoryTable, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get memory table: %w", err)
	}
	if content == "" {
		return prompt.DefaultMemoryTable, nil
	}
	return content, nil
}

// SetMemoryTable atomically replaces an actor's memory table text.
func (s *MemoryService) SetMemoryTable(actorID, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO memory_tables (actor_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (actor_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, actorID, content, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set memory table: %w", err)
	}
	return nil
}

// GetLiveFacts returns the situational data injected into prompts: the
// local wall clock plus the optional now-playing state written by the
// external music module.
func (s *MemoryService) GetLiveFacts() models.LiveFacts {
	facts := models.LiveFacts{WallClock: time.Now()}

	raw, err := s.getSetting(settingMusicNow)
	if err != nil || raw == "" {
		return facts
	}
	var music models.MusicFact
	if err := json.Unmarshal([]byte(raw), &music); err == nil && music.Song != "" {
		facts.Music = &music
	}
	return facts
}

// SetMusicNow records the now-playing state; empty song clears it.
func (s *MemoryService) SetMusicNow(music *models.MusicFact) error {
	if music == nil || music.Song == "" {
		return s.setSetting(settingMusicNow, "")
	}
	raw, err := json.Marshal(music)
	if err != nil {
		return fmt.Errorf("failed to serialize music state: %w", err)
	}
	return s.setSetting(settingMusicNow, string(raw))
}

func (s *MemoryService) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *MemoryService) setSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
