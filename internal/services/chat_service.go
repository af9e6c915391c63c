package services

import (
	"context"
	"errors"
	"time"

	"chat-sync/internal/db"
	"chat-sync/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotParticipant = errors.New("user is not a participant of this conversation")

type ChatService struct{}

func NewChatService() *ChatService {
	return &ChatService{}
}

func (s *ChatService) CreateConversation(ctx context.Context, creatorID int, req models.CreateConversationRequest) (*models.Conversation, error) {
	// Creator is always a participant.
	participants := []int{creatorID}
	for _, id := range req.Participants {
		if id != creatorID {
			participants = append(participants, id)
		}
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	conv := models.Conversation{
		ID:           uuid.New().String(),
		Name:         req.Name,
		ProjectID:    req.ProjectID,
		Participants: participants,
	}

	query := `INSERT INTO conversations (id, name, project_id) VALUES ($1, $2, $3) RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, query, conv.ID, conv.Name, conv.ProjectID).Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}

	for _, userID := range participants {
		if _, err := tx.Exec(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID int) ([]models.Conversation, error) {
	query := `
		SELECT c.id, c.name, c.project_id, c.archived, c.created_at, c.updated_at,
		       (SELECT max(m.created_at) FROM messages m WHERE m.conversation_id = c.id AND NOT m.deleted)
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY COALESCE((SELECT max(m.created_at) FROM messages m WHERE m.conversation_id = c.id AND NOT m.deleted), c.created_at) DESC
	`
	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.ProjectID, &c.Archived, &c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		participants, err := s.GetParticipants(ctx, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Participants = participants
	}
	return conversations, nil
}

func (s *ChatService) GetParticipants(ctx context.Context, conversationID string) ([]int, error) {
	rows, err := db.Pool.Query(ctx, `SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ChatService) IsParticipant(ctx context.Context, conversationID string, userID int) (bool, error) {
	var one int
	err := db.Pool.QueryRow(ctx, `SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *ChatService) RenameConversation(ctx context.Context, conversationID, name string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE conversations SET name = $1, updated_at = now() WHERE id = $2`, name, conversationID)
	return err
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	// Participants and messages go with the conversation via ON DELETE CASCADE.
	_, err := db.Pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	return err
}

func (s *ChatService) SaveMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.New().String()
	query := `INSERT INTO messages (id, conversation_id, sender_id, content, attachments)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`
	return db.Pool.QueryRow(ctx, query, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Attachments).
		Scan(&msg.CreatedAt, &msg.UpdatedAt)
}

// GetMessagesPage returns one page of a conversation's messages, oldest
// first within the page. Page 0 is the newest messages.
func (s *ChatService) GetMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, content, attachments, read, read_at, deleted, created_at, updated_at
		FROM messages WHERE conversation_id = $1 AND NOT deleted
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := db.Pool.Query(ctx, query, conversationID, pageSize, page*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Attachments,
			&msg.Read, &msg.ReadAt, &msg.Deleted, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkMessagesRead marks messages from other senders up to the cutoff as
// read by readerID. Returns the number of rows updated.
func (s *ChatService) MarkMessagesRead(ctx context.Context, conversationID string, readerID int, before time.Time) (int, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE messages SET read = true, read_at = now()
		WHERE conversation_id = $1 AND sender_id <> $2 AND created_at <= $3 AND NOT read`,
		conversationID, readerID, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
