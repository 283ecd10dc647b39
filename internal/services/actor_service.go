package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lumichat/internal/database"
	"lumichat/internal/models"
)

// ActorService manages contacts (individuals and groups).
type ActorService struct {
	db *database.DB
}

// NewActorService creates a new actor service.
func NewActorService(db *database.DB) *ActorService {
	return &ActorService{db: db}
}

// Create inserts a new actor, assigning an ID when absent.
func (s *ActorService) Create(actor *models.Actor) error {
	if actor.Name == "" {
		return fmt.Errorf("actor name is required")
	}
	if actor.ID == "" {
		actor.ID = uuid.NewString()
	}
	if actor.Kind == "" {
		actor.Kind = models.ActorKindIndividual
	}
	now := time.Now()
	actor.CreatedAt = now
	actor.UpdatedAt = now

	members, err := json.Marshal(actor.MemberIDs)
	if err != nil {
		return fmt.Errorf("failed to serialize member ids: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO actors (id, name, persona, custom_behavior, voice_id, avatar, kind, member_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, actor.ID, actor.Name, actor.Persona, actor.CustomBehavior, actor.VoiceID, actor.Avatar, actor.Kind, string(members), actor.CreatedAt, actor.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create actor: %w", err)
	}
	return nil
}

// Update overwrites an actor's mutable fields.
func (s *ActorService) Update(actor *models.Actor) error {
	members, err := json.Marshal(actor.MemberIDs)
	if err != nil {
		return fmt.Errorf("failed to serialize member ids: %w", err)
	}
	actor.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE actors SET name = ?, persona = ?, custom_behavior = ?, voice_id = ?, avatar = ?, kind = ?, member_ids = ?, updated_at = ?
		WHERE id = ?
	`, actor.Name, actor.Persona, actor.CustomBehavior, actor.VoiceID, actor.Avatar, actor.Kind, string(members), actor.UpdatedAt, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to update actor: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("actor not found")
	}
	return nil
}

// Get returns one actor by ID.
func (s *ActorService) Get(id string) (*models.Actor, error) {
	row := s.db.QueryRow(`
		SELECT id, name, persona, custom_behavior, voice_id, avatar, kind, member_ids, created_at, updated_at
		FROM actors WHERE id = ?
	`, id)
	return scanActor(row)
}

// List returns all actors ordered by creation time.
func (s *ActorService) List() ([]*models.Actor, error) {
	rows, err := s.db.Query(`
		SELECT id, name, persona, custom_behavior, voice_id, avatar, kind, member_ids, created_at, updated_at
		FROM actors ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	defer rows.Close()

	var actors []*models.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

// ListIndividuals returns all individual actors except the excluded IDs.
// Used to pick "好友" commenters for forum posts and moments.
func (s *ActorService) ListIndividuals(exclude ...string) ([]*models.Actor, error) {
	actors, err := s.List()
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var out []*models.Actor
	for _, a := range actors {
		if !a.IsGroup() && !excluded[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// Members resolves a group's member actors, preserving member order.
func (s *ActorService) Members(group *models.Actor) ([]*models.Actor, error) {
	members := make([]*models.Actor, 0, len(group.MemberIDs))
	for _, id := range group.MemberIDs {
		m, err := s.Get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve member %s: %w", id, err)
		}
		members = append(members, m)
	}
	return members, nil
}

// Delete removes an actor and its conversation.
func (s *ActorService) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM actors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete actor: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("actor not found")
	}
	s.db.Exec(`DELETE FROM messages WHERE actor_id = ?`, id)
	s.db.Exec(`DELETE FROM memory_tables WHERE actor_id = ?`, id)
	s.db.Exec(`DELETE FROM character_memories WHERE actor_id = ?`, id)
	return nil
}

// GetUserProfile returns the singleton user profile.
func (s *ActorService) GetUserProfile() (models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRow(`SELECT name, persona, avatar FROM user_profile WHERE id = 1`).
		Scan(&p.Name, &p.Persona, &p.Avatar)
	if err == sql.ErrNoRows {
		return models.UserProfile{}, nil
	}
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to get user profile: %w", err)
	}
	return p, nil
}

// SetUserProfile replaces the singleton user profile.
func (s *ActorService) SetUserProfile(p models.UserProfile) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profile (id, name, persona, avatar) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, persona = excluded.persona, avatar = excluded.avatar
	`, p.Name, p.Persona, p.Avatar)
	if err != nil {
		return fmt.Errorf("failed to set user profile: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (*models.Actor, error) {
	var a models.Actor
	var members string
	err := row.Scan(&a.ID, &a.Name, &a.Persona, &a.CustomBehavior, &a.VoiceID, &a.Avatar, &a.Kind, &members, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("actor not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan actor: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &a.MemberIDs); err != nil {
		return nil, fmt.Errorf("failed to parse member ids: %w", err)
	}
	return &a, nil
}
