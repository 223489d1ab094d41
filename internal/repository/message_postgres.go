package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"privchat/internal/domain"
	"privchat/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	file_id       TEXT,
	file_name     TEXT,
	file_mime     TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	edited        BOOLEAN NOT NULL DEFAULT FALSE,
	edited_at     TIMESTAMPTZ,
	original_text TEXT NOT NULL DEFAULT '',
	likes         TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS messages_created_at_idx ON messages (created_at);
`

const messageColumns = `id, username, text, file_id, file_name, file_mime, created_at,
	deleted, edited, edited_at, original_text, likes`

type postgresMessageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger

	schemaMu    sync.Mutex
	schemaReady atomic.Bool
}

func NewPostgresMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &postgresMessageRepository{db: db, log: log}
}

// EnsureSchema creates the messages table when it is missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}

// ready creates the messages table on first use. A database that was down
// at startup gets its schema as soon as it answers.
func (r *postgresMessageRepository) ready(ctx context.Context) error {
	if r.schemaReady.Load() {
		return nil
	}
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if r.schemaReady.Load() {
		return nil
	}
	if err := EnsureSchema(ctx, r.db); err != nil {
		r.log.Warn("Failed to ensure messages schema", "error", err)
		return unavailable("ensure schema", err)
	}
	r.schemaReady.Store(true)
	r.log.Info("Messages schema ready")
	return nil
}

func (r *postgresMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Likers == nil {
		message.Likers = []string{}
	}
	fileID, fileName, fileMime := fileColumns(message.File)

	query := `
		INSERT INTO messages (id, username, text, file_id, file_name, file_mime, created_at, likes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		message.ID, message.Username, message.Text, fileID, fileName, fileMime,
		message.CreatedAt, message.Likers,
	).Scan(&message.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return unavailable("create message", err)
	}
	return nil
}

func (r *postgresMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	message, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "message_id", id, "error", err)
		return nil, unavailable("find message", err)
	}
	return message, nil
}

func (r *postgresMessageRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, unavailable("list messages", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, unavailable("scan message", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list messages", err)
	}

	reverse(messages)
	return messages, nil
}

func (r *postgresMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	fileID, fileName, fileMime := fileColumns(message.File)
	query := `
		UPDATE messages
		SET text = $2, file_id = $3, file_name = $4, file_mime = $5, deleted = $6,
			edited = $7, edited_at = $8, original_text = $9, likes = $10
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		message.ID, message.Text, fileID, fileName, fileMime, message.Deleted,
		message.Edited, message.EditedAt, message.OriginalText, message.LikersCopy(),
	)
	if err != nil {
		r.log.Error("Failed to save message", "message_id", message.ID, "error", err)
		return unavailable("save message", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *postgresMessageRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete message", "message_id", id, "error", err)
		return unavailable("delete message", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *postgresMessageRepository) Ping(ctx context.Context) error {
	return unavailable("ping", r.db.Ping(ctx))
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	message := &domain.Message{}
	var fileID, fileName, fileMime *string
	var editedAt *time.Time

	err := row.Scan(
		&message.ID, &message.Username, &message.Text, &fileID, &fileName, &fileMime,
		&message.CreatedAt, &message.Deleted, &message.Edited, &editedAt,
		&message.OriginalText, &message.Likers,
	)
	if err != nil {
		return nil, err
	}

	if fileID != nil && *fileID != "" {
		message.File = &domain.FileRef{FileID: *fileID}
		if fileName != nil {
			message.File.FileName = *fileName
		}
		if fileMime != nil {
			message.File.FileMime = *fileMime
		}
	}
	message.EditedAt = editedAt
	if message.Likers == nil {
		message.Likers = []string{}
	}
	return message, nil
}

func fileColumns(file *domain.FileRef) (id, name, mime *string) {
	if file == nil {
		return nil, nil, nil
	}
	return &file.FileID, &file.FileName, &file.FileMime
}
