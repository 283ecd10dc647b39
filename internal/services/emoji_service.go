package services

import (
	"fmt"

	"lumichat/internal/database"
	"lumichat/internal/models"
)

// EmojiService manages the user's emoji set.
type EmojiService struct {
	db *database.DB
}

// NewEmojiService creates a new emoji service.
func NewEmojiService(db *database.DB) *EmojiService {
	return &EmojiService{db: db}
}

// List returns the full emoji set.
func (s *EmojiService) List() ([]models.Emoji, error) {
	rows, err := s.db.Query(`SELECT tag, meaning, image_url FROM emojis ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to list emojis: %w", err)
	}
	defer rows.Close()

	var emojis []models.Emoji
	for rows.Next() {
		var e models.Emoji
		if err := rows.Scan(&e.Tag, &e.Meaning, &e.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan emoji: %w", err)
		}
		emojis = append(emojis, e)
	}
	return emojis, rows.Err()
}

// Upsert inserts or replaces one emoji by tag.
func (s *EmojiService) Upsert(e models.Emoji) error {
	if e.Tag == "" {
		return fmt.Errorf("emoji tag is required")
	}
	_, err := s.db.Exec(`
		INSERT INTO emojis (tag, meaning, image_url) VALUES (?, ?, ?)
		ON CONFLICT (tag) DO UPDATE SET meaning = excluded.meaning, image_url = excluded.image_url
	`, e.Tag, e.Meaning, e.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to upsert emoji: %w", err)
	}
	return nil
}

// Delete removes one emoji by tag.
func (s *EmojiService) Delete(tag string) error {
	result, err := s.db.Exec(`DELETE FROM emojis WHERE tag = ?`, tag)
	if err != nil {
		return fmt.Errorf("failed to delete emoji: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("emoji not found")
	}
	return nil
}
