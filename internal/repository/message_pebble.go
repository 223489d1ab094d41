package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"privchat/internal/domain"
	"privchat/pkg/logger"
)

// Key layout:
//
//	msg:<created unix nano, 20 digits>-<id>  -> message JSON
//	id:<id>                                  -> primary key
const (
	pebbleMessagePrefix = "msg:"
	pebbleIndexPrefix   = "id:"
)

type pebbleMessageRepository struct {
	db  *pebble.DB
	log logger.Logger
}

// OpenPebbleMessageRepository opens (or creates) a pebble database at path.
func OpenPebbleMessageRepository(path string, log logger.Logger) (MessageRepository, func() error, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	log.Info("Pebble message store opened", "path", path)
	return &pebbleMessageRepository{db: db, log: log}, db.Close, nil
}

func primaryKey(m *domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%020d-%s", pebbleMessagePrefix, m.CreatedAt.UnixNano(), m.ID))
}

func indexKey(id string) []byte {
	return []byte(pebbleIndexPrefix + id)
}

func (r *pebbleMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Likers == nil {
		message.Likers = []string{}
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pk := primaryKey(message)
	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(pk, data, nil); err != nil {
		return unavailable("create message", err)
	}
	if err := batch.Set(indexKey(message.ID), pk, nil); err != nil {
		return unavailable("create message", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		r.log.Error("Failed to create message", "error", err)
		return unavailable("create message", err)
	}
	return nil
}

func (r *pebbleMessageRepository) lookup(id string) ([]byte, error) {
	v, closer, err := r.db.Get(indexKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, unavailable("lookup message", err)
	}
	pk := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		r.log.Warn("Failed to release pebble value", "error", err)
	}
	return pk, nil
}

func (r *pebbleMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	pk, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	v, closer, err := r.db.Get(pk)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "message_id", id, "error", err)
		return nil, unavailable("find message", err)
	}
	defer closer.Close()

	var message domain.Message
	if err := json.Unmarshal(v, &message); err != nil {
		return nil, unavailable("decode message", err)
	}
	return &message, nil
}

func (r *pebbleMessageRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pebbleMessagePrefix),
		UpperBound: []byte("msg;"),
	})
	if err != nil {
		r.log.Error("Failed to open pebble iterator", "error", err)
		return nil, unavailable("list messages", err)
	}
	defer iter.Close()

	messages := make([]*domain.Message, 0, limit)
	for iter.Last(); iter.Valid() && len(messages) < limit; iter.Prev() {
		var message domain.Message
		if err := json.Unmarshal(iter.Value(), &message); err != nil {
			r.log.Warn("Skipping undecodable message", "key", string(iter.Key()), "error", err)
			continue
		}
		messages = append(messages, &message)
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable("list messages", err)
	}

	reverse(messages)
	return messages, nil
}

func (r *pebbleMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	pk, err := r.lookup(message.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.db.Set(pk, data, pebble.Sync); err != nil {
		r.log.Error("Failed to save message", "message_id", message.ID, "error", err)
		return unavailable("save message", err)
	}
	return nil
}

func (r *pebbleMessageRepository) DeleteByID(ctx context.Context, id string) error {
	pk, err := r.lookup(id)
	if err != nil {
		return err
	}

	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(pk, nil); err != nil {
		return unavailable("delete message", err)
	}
	if err := batch.Delete(indexKey(id), nil); err != nil {
		return unavailable("delete message", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		r.log.Error("Failed to delete message", "message_id", id, "error", err)
		return unavailable("delete message", err)
	}
	return nil
}

func (r *pebbleMessageRepository) Ping(ctx context.Context) error {
	return nil
}
