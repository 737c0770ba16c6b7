// Package db persists conversations and messages in Postgres through bun.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"verse-rag/internal/models"
)

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ConversationID string    `bun:"conversation_id,pk"`
	Title          string    `bun:"title,nullzero"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Role           string    `bun:"role,notnull"`
	Content        string    `bun:"content,notnull"`
	// JSON-encoded []models.RetrievedVerse; empty when the turn cited nothing.
	RetrievedVerses string    `bun:"retrieved_verses,nullzero"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

// ConversationListItem is a summary row for the conversation list endpoint.
type ConversationListItem struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
}

// ConversationDetail is a conversation with its full message history.
type ConversationDetail struct {
	ConversationID string                    `json:"conversation_id"`
	Title          string                    `json:"title,omitempty"`
	Messages       []models.ConversationTurn `json:"messages"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// Store implements ports.ConversationStore plus the CRUD the HTTP layer needs.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store { return &Store{db: db} }

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Conversation)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("creating conversations table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Message)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ConversationID: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(conv).Exec(ctx); err != nil {
		return "", err
	}
	return conv.ConversationID, nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string, retrieved []models.RetrievedVerse) (models.ConversationTurn, error) {
	now := time.Now().UTC()

	var versesJSON string
	if len(retrieved) > 0 {
		data, err := json.Marshal(retrieved)
		if err != nil {
			return models.ConversationTurn{}, fmt.Errorf("encoding retrieved verses: %w", err)
		}
		versesJSON = string(data)
	}

	msg := &Message{
		ConversationID:  conversationID,
		Role:            role,
		Content:         content,
		RetrievedVerses: versesJSON,
		CreatedAt:       now,
	}
	if _, err := s.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return models.ConversationTurn{}, err
	}

	if _, err := s.db.NewUpdate().Model((*Conversation)(nil)).
		Set("updated_at = ?", now).
		Where("conversation_id = ?", conversationID).
		Exec(ctx); err != nil {
		return models.ConversationTurn{}, err
	}

	return models.ConversationTurn{
		Role:            role,
		Content:         content,
		Timestamp:       now,
		RetrievedVerses: retrieved,
	}, nil
}

// RecentTurns returns the last limit messages in chronological order.
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	var msgs []Message
	err := s.db.NewSelect().Model(&msgs).
		Where("conversation_id = ?", conversationID).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	turns := make([]models.ConversationTurn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		turn, err := toTurn(msgs[i])
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*ConversationDetail, error) {
	conv := new(Conversation)
	err := s.db.NewSelect().Model(conv).
		Where("conversation_id = ?", conversationID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var msgs []Message
	err = s.db.NewSelect().Model(&msgs).
		Where("conversation_id = ?", conversationID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	turns := make([]models.ConversationTurn, 0, len(msgs))
	for _, m := range msgs {
		turn, err := toTurn(m)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	return &ConversationDetail{
		ConversationID: conv.ConversationID,
		Title:          conv.Title,
		Messages:       turns,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]ConversationListItem, error) {
	var rows []struct {
		Conversation
		MessageCount int `bun:"message_count"`
	}
	err := s.db.NewSelect().Model((*Conversation)(nil)).
		ColumnExpr("c.*").
		ColumnExpr("count(m.id) AS message_count").
		Join("LEFT JOIN messages AS m ON m.conversation_id = c.conversation_id").
		GroupExpr("c.conversation_id").
		OrderExpr("c.updated_at DESC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	items := make([]ConversationListItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ConversationListItem{
			ConversationID: r.ConversationID,
			Title:          r.Title,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
			MessageCount:   r.MessageCount,
		})
	}
	return items, nil
}

func (s *Store) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	_, err := s.db.NewUpdate().Model((*Conversation)(nil)).
		Set("title = ?", title).
		Where("conversation_id = ?", conversationID).
		Exec(ctx)
	return err
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := s.db.NewDelete().Model((*Message)(nil)).
		Where("conversation_id = ?", conversationID).
		Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewDelete().Model((*Conversation)(nil)).
		Where("conversation_id = ?", conversationID).
		Exec(ctx)
	return err
}

func toTurn(m Message) (models.ConversationTurn, error) {
	turn := models.ConversationTurn{
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
	if m.RetrievedVerses != "" {
		if err := json.Unmarshal([]byte(m.RetrievedVerses), &turn.RetrievedVerses); err != nil {
			return turn, fmt.Errorf("decoding retrieved verses for message %d: %w", m.ID, err)
		}
	}
	return turn, nil
}
