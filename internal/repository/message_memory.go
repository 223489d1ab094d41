package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"privchat/internal/domain"
)

// MemoryMessageRepository keeps messages in process memory. It backs the
// "memory" store driver and tests, and can be told to fail like an
// unreachable database.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
	order    []string

	failReads  atomic.Bool
	failWrites atomic.Bool
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages: make(map[string]*domain.Message),
	}
}

// SetUnavailable makes every call fail with domain.ErrStoreUnavailable.
func (r *MemoryMessageRepository) SetUnavailable(down bool) {
	r.failReads.Store(down)
	r.failWrites.Store(down)
}

// SetFailWrites makes only Create, Save and DeleteByID fail.
func (r *MemoryMessageRepository) SetFailWrites(fail bool) {
	r.failWrites.Store(fail)
}

func (r *MemoryMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	if r.failWrites.Load() {
		return domain.ErrStoreUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Likers == nil {
		message.Likers = []string{}
	}
	r.messages[message.ID] = message.Clone()
	r.order = append(r.order, message.ID)
	return nil
}

func (r *MemoryMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	if r.failReads.Load() {
		return nil, domain.ErrStoreUnavailable
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return message.Clone(), nil
}

func (r *MemoryMessageRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	if r.failReads.Load() {
		return nil, domain.ErrStoreUnavailable
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := len(r.order) - limit
	if start < 0 {
		start = 0
	}
	out := make([]*domain.Message, 0, len(r.order)-start)
	for _, id := range r.order[start:] {
		out = append(out, r.messages[id].Clone())
	}
	return out, nil
}

func (r *MemoryMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if r.failWrites.Load() {
		return domain.ErrStoreUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[message.ID]; !ok {
		return domain.ErrMessageNotFound
	}
	r.messages[message.ID] = message.Clone()
	return nil
}

func (r *MemoryMessageRepository) DeleteByID(ctx context.Context, id string) error {
	if r.failWrites.Load() {
		return domain.ErrStoreUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[id]; !ok {
		return domain.ErrMessageNotFound
	}
	delete(r.messages, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryMessageRepository) Ping(ctx context.Context) error {
	if r.failReads.Load() {
		return domain.ErrStoreUnavailable
	}
	return nil
}
