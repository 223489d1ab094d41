package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceCountsConnections(t *testing.T) {
	p := NewPresence()

	assert.Equal(t, []string{"alice"}, p.Connect("alice", nil))
	assert.Equal(t, []string{"alice", "bob"}, p.Connect("bob", nil))
	p.Connect("alice", nil)
	assert.Equal(t, 2, p.Count("alice"))

	assert.Equal(t, []string{"alice", "bob"}, p.Disconnect("alice", nil))
	assert.Equal(t, []string{"bob"}, p.Disconnect("alice", nil))
	assert.Equal(t, []string{"bob"}, p.Disconnect("alice", nil))
	assert.Equal(t, 0, p.Count("alice"))
	assert.Equal(t, []string{"bob"}, p.Disconnect("carol", nil))
}

func TestPresenceInterleavedConnections(t *testing.T) {
	p := NewPresence()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Connect("alice", nil)
			p.Connect("bob", nil)
			p.Disconnect("alice", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"bob"}, p.Snapshot())
	assert.Equal(t, 50, p.Count("bob"))
}

func TestPresencePublishesInMutationOrder(t *testing.T) {
	p := NewPresence()
	var mu sync.Mutex
	var sizes []int
	publish := func(online []string) {
		mu.Lock()
		sizes = append(sizes, len(online))
		mu.Unlock()
	}

	p.Connect("alice", publish)
	p.Connect("bob", publish)
	p.Disconnect("bob", publish)
	p.Disconnect("alice", publish)

	assert.Equal(t, []int{1, 2, 1, 0}, sizes)
}

func TestTypingIsPerIdentity(t *testing.T) {
	ty := NewTyping()

	assert.Equal(t, []string{"alice"}, ty.Set("alice", true, nil))
	ty.Set("alice", true, nil)
	assert.Equal(t, []string{"alice", "bob"}, ty.Set("bob", true, nil))
	assert.Equal(t, []string{"bob"}, ty.Set("alice", false, nil))
	assert.Equal(t, []string{}, ty.Clear("bob", nil))
	assert.Equal(t, []string{}, ty.Clear("nobody", nil))
}
