package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lingolink/realtime-core/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNotMember = errors.New("not a chat member")
)

type Store struct {
	db DB
}

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type InsertMessageInput struct {
	ChatID      string
	SenderID    string
	Content     string
	MessageType string
}

func New(db DB) *Store {
	return &Store{db: db}
}

// ListChatMemberIDs returns every member of the chat, including ones that are
// currently offline. Broadcast targeting filters against the live registry.
func (s *Store) ListChatMemberIDs(ctx context.Context, chatID string) ([]string, error) {
	const q = `
select user_id
from chat_members
where chat_id = $1
order by user_id asc`

	rows, err := s.db.Query(ctx, q, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	const q = `
select exists (
  select 1 from chat_members where chat_id = $1 and user_id = $2
)`
	var ok bool
	if err := s.db.QueryRow(ctx, q, chatID, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// InsertMessage persists a chat message after verifying the sender is a
// member of the chat. Membership and insert run in one transaction so a
// concurrent removal cannot slip a message in.
func (s *Store) InsertMessage(ctx context.Context, in InsertMessageInput) (*model.Message, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var member bool
	const memberQ = `
select exists (
  select 1 from chat_members where chat_id = $1 and user_id = $2
)`
	if err := tx.QueryRow(ctx, memberQ, in.ChatID, in.SenderID).Scan(&member); err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	newID := "msg_" + uuid.NewString()
	now := time.Now().UTC()
	const insertQ = `
insert into messages
  (id, chat_id, sender_id, content, message_type, created_at)
values
  ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insertQ, newID, in.ChatID, in.SenderID, in.Content, in.MessageType, now); err != nil {
		return nil, err
	}

	const touchQ = `update chats set last_message_at = $2, updated_at = $2 where id = $1`
	if _, err := tx.Exec(ctx, touchQ, in.ChatID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &model.Message{
		ID:          newID,
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		MessageType: in.MessageType,
		CreatedAt:   now,
	}, nil
}

// MarkChatRead advances the reader's watermark for the chat. Idempotent;
// re-marking an already-read chat is a no-op.
func (s *Store) MarkChatRead(ctx context.Context, chatID, userID string) error {
	const q = `
update chat_members
set last_read_at = now()
where chat_id = $1 and user_id = $2`
	tag, err := s.db.Exec(ctx, q, chatID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMember
	}
	return nil
}

// InsertTranslationLog records one analytics row per completed translation.
// Callers treat failures as non-fatal; the row is advisory.
func (s *Store) InsertTranslationLog(ctx context.Context, l model.TranslationLog) error {
	const q = `
insert into translation_logs
  (id, user_id, source_language, target_language, source_text, translated_text, latency_ms, model_used, created_at)
values
  ($1, $2, $3, $4, $5, $6, $7, $8, now())`
	_, err := s.db.Exec(ctx, q,
		"tlg_"+uuid.NewString(), l.UserID, l.SourceLanguage, l.TargetLanguage,
		l.SourceText, l.TranslatedText, l.LatencyMS, l.ModelUsed,
	)
	return err
}

// PruneTranslationLogs deletes analytics rows older than the retention
// window and reports how many were removed.
func (s *Store) PruneTranslationLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `delete from translation_logs where created_at < now() - $1::interval`
	tag, err := s.db.Exec(ctx, q, olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountRecentTranslations reports translation volume over the trailing
// window, used by the periodic stats job.
func (s *Store) CountRecentTranslations(ctx context.Context, window time.Duration) (int64, error) {
	const q = `select count(*) from translation_logs where created_at >= now() - $1::interval`
	var n int64
	if err := s.db.QueryRow(ctx, q, window.String()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
