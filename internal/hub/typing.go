package hub

import (
	"sort"
	"sync"
)

// Typing tracks which identities are typing. State is per identity, not per
// connection: a stop from any tab clears the identity.
type Typing struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func NewTyping() *Typing {
	return &Typing{users: make(map[string]struct{})}
}

// Set records identity as typing or not and runs publish with the resulting
// set while the lock is held.
func (t *Typing) Set(identity string, typing bool, publish func(users []string)) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if typing {
		t.users[identity] = struct{}{}
	} else {
		delete(t.users, identity)
	}
	users := t.snapshot()
	if publish != nil {
		publish(users)
	}
	return users
}

func (t *Typing) Clear(identity string, publish func(users []string)) []string {
	return t.Set(identity, false, publish)
}

func (t *Typing) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Typing) snapshot() []string {
	users := make([]string, 0, len(t.users))
	for identity := range t.users {
		users = append(users, identity)
	}
	sort.Strings(users)
	return users
}
