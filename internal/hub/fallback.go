package hub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"privchat/internal/domain"
)

// Fallback is a bounded in-process history used while the repository is
// unreachable. When full, the oldest message is evicted. Messages stored
// here are never copied back to the repository.
type Fallback struct {
	mu    sync.Mutex
	items []*domain.Message
	head  int
	count int
}

func NewFallback(capacity int) *Fallback {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Fallback{items: make([]*domain.Message, capacity)}
}

// NewFallbackID returns an id of the form <unix millis>-<7 hex chars>.
func NewFallbackID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

func (f *Fallback) index(i int) int {
	return (f.head + i) % len(f.items)
}

func (f *Fallback) Append(message *domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := message.Clone()
	if f.count == len(f.items) {
		f.items[f.head] = stored
		f.head = (f.head + 1) % len(f.items)
		return
	}
	f.items[f.index(f.count)] = stored
	f.count++
}

// Last returns up to n of the newest messages, oldest first.
func (f *Fallback) Last(n int) []*domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n > f.count {
		n = f.count
	}
	if n < 0 {
		n = 0
	}
	out := make([]*domain.Message, 0, n)
	for i := f.count - n; i < f.count; i++ {
		out = append(out, f.items[f.index(i)].Clone())
	}
	return out
}

func (f *Fallback) position(id string) int {
	for i := 0; i < f.count; i++ {
		if f.items[f.index(i)].ID == id {
			return i
		}
	}
	return -1
}

func (f *Fallback) Find(id string) (*domain.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos := f.position(id)
	if pos < 0 {
		return nil, false
	}
	return f.items[f.index(pos)].Clone(), true
}

// Update replaces the stored message with the same ID. It reports false when
// the message has been evicted or removed.
func (f *Fallback) Update(message *domain.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos := f.position(message.ID)
	if pos < 0 {
		return false
	}
	f.items[f.index(pos)] = message.Clone()
	return true
}

func (f *Fallback) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos := f.position(id)
	if pos < 0 {
		return false
	}
	for i := pos; i < f.count-1; i++ {
		f.items[f.index(i)] = f.items[f.index(i+1)]
	}
	f.items[f.index(f.count-1)] = nil
	f.count--
	return true
}

func (f *Fallback) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
