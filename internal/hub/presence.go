package hub

import (
	"sort"
	"sync"
)

// Presence counts open connections per identity. An identity is online
// while its count is above zero.
type Presence struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewPresence() *Presence {
	return &Presence{counts: make(map[string]int)}
}

// Connect increments identity's count. publish, when not nil, runs with the
// resulting online set before the lock is released, so observers see
// snapshots in mutation order.
func (p *Presence) Connect(identity string, publish func(online []string)) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[identity]++
	online := p.snapshot()
	if publish != nil {
		publish(online)
	}
	return online
}

// Disconnect decrements identity's count, removing it at zero. Unknown
// identities leave the set untouched but still publish.
func (p *Presence) Disconnect(identity string, publish func(online []string)) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n, ok := p.counts[identity]; ok {
		if n <= 1 {
			delete(p.counts, identity)
		} else {
			p.counts[identity] = n - 1
		}
	}
	online := p.snapshot()
	if publish != nil {
		publish(online)
	}
	return online
}

func (p *Presence) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

// Count returns the number of open connections held by identity.
func (p *Presence) Count(identity string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[identity]
}

func (p *Presence) snapshot() []string {
	online := make([]string, 0, len(p.counts))
	for identity := range p.counts {
		online = append(online, identity)
	}
	sort.Strings(online)
	return online
}
