package services

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lumichat/internal/database"
	"lumichat/internal/models"
)

// MessageService is the per-contact message log.
type MessageService struct {
	db *database.DB
}

// NewMessageService creates a new message service.
func NewMessageService(db *database.DB) *MessageService {
	return &MessageService{db: db}
}

// Append inserts one message at the end of a conversation.
func (s *MessageService) Append(m *models.Message) error {
	if m.ActorID == "" {
		return fmt.Errorf("actor ID is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Kind == "" {
		m.Kind = models.MessageKindText
	}

	var amount, note any
	if m.RedPacket != nil {
		amount = m.RedPacket.Amount
		note = m.RedPacket.Message
	}

	_, err := s.db.Exec(`
		INSERT INTO messages (id, actor_id, sender_id, role, kind, content, red_amount, red_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ActorID, m.SenderID, m.Role, m.Kind, m.Content, amount, note, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Recent returns the tail of a conversation in chronological order,
// at most k messages.
func (s *MessageService) Recent(actorID string, k int) ([]models.Message, error) {
	if k <= 0 {
		k = models.DefaultContextMessageCount
	}
	rows, err := s.db.Query(`
		SELECT id, actor_id, sender_id, role, kind, content, red_amount, red_message, timestamp
		FROM messages WHERE actor_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, actorID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse the DESC tail back to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountUserTurns returns how many user messages a conversation holds.
// The chat service uses it to decide when to trigger a memory refresh.
func (s *MessageService) CountUserTurns(actorID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE actor_id = ? AND role = 'user'`, actorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count user turns: %w", err)
	}
	return n, nil
}

func scanMessage(rows *sql.Rows) (models.Message, error) {
	var m models.Message
	var amount sql.NullFloat64
	var note sql.NullString
	err := rows.Scan(&m.ID, &m.ActorID, &m.SenderID, &m.Role, &m.Kind, &m.Content, &amount, &note, &m.Timestamp)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	if amount.Valid {
		m.RedPacket = &models.RedPacket{Amount: amount.Float64, Message: note.String}
	}
	return m, nil
}
