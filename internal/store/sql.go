package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT    PRIMARY KEY,
		session_id TEXT    NOT NULL UNIQUE,
		created_at BIGINT  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT    PRIMARY KEY,
		conversation_id TEXT    NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		content         TEXT    NOT NULL,
		is_bot          BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      BIGINT  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
}

// SQLStore implements Store on top of database/sql. Timestamps are stored as unix
// microseconds so that both dialects order them identically.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL connects to the database and ensures the schema exists.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection keeps ":memory:" databases shared across queries
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders into the dialect's form.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) FindConversationBySession(ctx context.Context, sessionID string) (*chat.Conversation, error) {
	var (
		conv      chat.Conversation
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, session_id, created_at FROM conversations WHERE session_id = ? ORDER BY created_at ASC LIMIT 1`),
		sessionID,
	).Scan(&conv.ID, &conv.SessionID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	conv.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &conv, nil
}

func (s *SQLStore) CreateConversation(ctx context.Context, sessionID string) (chat.Conversation, bool, error) {
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO conversations (id, session_id, created_at) VALUES (?, ?, ?) ON CONFLICT (session_id) DO NOTHING`),
		conv.ID, conv.SessionID, conv.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("insert conversation: %w", err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 1 {
		return conv, true, nil
	}

	existing, err := s.FindConversationBySession(ctx, sessionID)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	if existing == nil {
		return chat.Conversation{}, false, fmt.Errorf("insert conversation: %w", ErrConversationNotFound)
	}
	return *existing, false, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	var (
		conv      chat.Conversation
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, session_id, created_at FROM conversations WHERE id = ?`), id,
	).Scan(&conv.ID, &conv.SessionID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	conv.CreatedAt = time.UnixMicro(createdAt).UTC()
	return conv, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, conversationID, content string, isBot bool) (msg chat.Message, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, fmt.Errorf("begin message insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Locking the conversation row serializes appends per conversation on Postgres.
	// SQLite runs on a single connection, so the transaction alone is exclusive.
	lookup := `SELECT id FROM conversations WHERE id = ?`
	if s.driver == DriverPostgres {
		lookup += ` FOR UPDATE`
	}
	var id string
	err = tx.QueryRowContext(ctx, s.rebind(lookup), conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("lock conversation: %w", err)
	}

	var last sql.NullInt64
	if err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`), conversationID,
	).Scan(&last); err != nil {
		return chat.Message{}, fmt.Errorf("latest message time: %w", err)
	}

	// created_at is the only ordering key, keep it strictly increasing per conversation
	createdAt := time.Now().UTC().UnixMicro()
	if last.Valid && createdAt <= last.Int64 {
		createdAt = last.Int64 + 1
	}

	msg = chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		IsBot:          isBot,
		CreatedAt:      time.UnixMicro(createdAt).UTC(),
	}
	if _, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO messages (id, conversation_id, content, is_bot, created_at) VALUES (?, ?, ?, ?, ?)`),
		msg.ID, msg.ConversationID, msg.Content, msg.IsBot, createdAt,
	); err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("commit message insert: %w", err)
	}
	return msg, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, conversation_id, content, is_bot, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`),
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg       chat.Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Content, &msg.IsBot, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.UnixMicro(createdAt).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
