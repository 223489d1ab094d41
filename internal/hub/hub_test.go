package hub

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privchat/internal/domain"
	"privchat/internal/repository"
	"privchat/pkg/logger"
)

func newTestHub(t *testing.T, opts Options) (*Hub, *repository.MemoryMessageRepository) {
	t.Helper()
	repo := repository.NewMemoryMessageRepository()
	return New(repo, opts, NewMetrics(prometheus.NewRegistry()), logger.NewNop()), repo
}

func connect(t *testing.T, h *Hub, identity string) *Client {
	t.Helper()
	c := NewClient(h, nil, Session{Identity: identity, Authenticated: true})
	require.NoError(t, h.Register(context.Background(), c))
	return c
}

// drain returns every frame queued for c so far.
func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var frames []Envelope
	for {
		select {
		case raw, ok := <-c.Outbox():
			if !ok {
				return frames
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			frames = append(frames, env)
		default:
			return frames
		}
	}
}

func only(frames []Envelope, event string) []Envelope {
	var out []Envelope
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func TestRegisterSendsPresenceAndHistory(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()

	alice := connect(t, h, "alice")
	_, err := h.SendText(ctx, "alice", "earlier")
	require.NoError(t, err)
	drain(t, alice)

	bob := connect(t, h, "bob")
	frames := drain(t, bob)
	require.Len(t, frames, 2)
	assert.Equal(t, EventPresenceUpdate, frames[0].Event)
	assert.Equal(t, EventInit, frames[1].Event)

	var init initPayload
	require.NoError(t, json.Unmarshal(frames[1].Data, &init))
	require.Len(t, init.Messages, 1)
	assert.Equal(t, "earlier", init.Messages[0].Text)

	var presence presencePayload
	require.NoError(t, json.Unmarshal(only(drain(t, alice), EventPresenceUpdate)[0].Data, &presence))
	assert.Equal(t, []string{"alice", "bob"}, presence.Online)
	assert.Equal(t, 2, h.ClientCount())
}

func TestSendTextBroadcastsOnce(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	_, err := h.SendText(context.Background(), "alice", "hi")
	require.NoError(t, err)

	for _, c := range []*Client{alice, bob} {
		frames := drain(t, c)
		require.Len(t, frames, 1)
		require.Equal(t, EventMessageNew, frames[0].Event)

		var msg domain.Message
		require.NoError(t, json.Unmarshal(frames[0].Data, &msg))
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hi", msg.Text)
		assert.False(t, msg.Deleted)
		assert.False(t, msg.Edited)
		assert.NotNil(t, msg.Likers)
		assert.Empty(t, msg.Likers)
	}

	_, err = h.SendText(context.Background(), "alice", "")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Empty(t, drain(t, bob))
}

func TestStoreOutageUsesFallback(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	ctx := context.Background()
	repo.SetUnavailable(true)

	msg, err := h.SendText(ctx, "alice", "offline")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d+-[0-9a-f]{7}$`), msg.ID)
	assert.Equal(t, 1, h.Fallback().Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FallbackWrites))

	bob := connect(t, h, "bob")
	var init initPayload
	require.NoError(t, json.Unmarshal(only(drain(t, bob), EventInit)[0].Data, &init))
	require.Len(t, init.Messages, 1)
	assert.Equal(t, msg.ID, init.Messages[0].ID)

	// the store recovers, but the message still lives in the buffer only
	repo.SetUnavailable(false)
	likers, err := h.ToggleLike(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, likers)

	stored, ok := h.Fallback().Find(msg.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, stored.Likers)

	_, err = repo.FindByID(ctx, msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestToggleLikeTwiceRestoresLikers(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	alice := connect(t, h, "alice")

	msg, err := h.SendText(ctx, "alice", "like me")
	require.NoError(t, err)
	drain(t, alice)

	likers, err := h.ToggleLike(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, likers)

	likers, err = h.ToggleLike(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, likers)

	liked := only(drain(t, alice), EventMessageLiked)
	require.Len(t, liked, 2)
	var payload likedPayload
	require.NoError(t, json.Unmarshal(liked[1].Data, &payload))
	assert.Equal(t, msg.ID, payload.MessageID)
	assert.Equal(t, []string{}, payload.Likers)

	_, err = h.ToggleLike(ctx, "bob", "missing")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	_, err = h.ToggleLike(ctx, "bob", "")
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestEditRules(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	alice := connect(t, h, "alice")

	msg, err := h.SendText(ctx, "alice", "first")
	require.NoError(t, err)
	drain(t, alice)

	_, err = h.Edit(ctx, "bob", msg.ID, "hijack")
	assert.ErrorIs(t, err, domain.ErrNotAuthor)
	_, err = h.Edit(ctx, "alice", msg.ID, "")
	assert.ErrorIs(t, err, domain.ErrMissingField)
	assert.Empty(t, drain(t, alice))

	edited, err := h.Edit(ctx, "alice", msg.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "first", edited.OriginalText)
	edited, err = h.Edit(ctx, "alice", msg.ID, "third")
	require.NoError(t, err)
	assert.Equal(t, "first", edited.OriginalText)
	assert.Equal(t, "third", edited.Text)

	frames := only(drain(t, alice), EventMessageEdited)
	require.Len(t, frames, 2)
	var payload changedPayload
	require.NoError(t, json.Unmarshal(frames[1].Data, &payload))
	assert.Equal(t, "third", payload.Msg.Text)

	_, err = h.Delete(ctx, "alice", msg.ID)
	require.NoError(t, err)
	_, err = h.Edit(ctx, "alice", msg.ID, "fourth")
	assert.ErrorIs(t, err, domain.ErrMessageDeleted)
}

func TestEditFileMessageTwiceKeepsFirstOriginal(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()

	msg, err := h.SendFile(ctx, "alice", domain.FileRef{FileID: "f1", FileName: "a.png", FileMime: "image/png"})
	require.NoError(t, err)

	edited, err := h.Edit(ctx, "alice", msg.ID, "caption one")
	require.NoError(t, err)
	assert.Equal(t, "", edited.OriginalText)

	edited, err = h.Edit(ctx, "alice", msg.ID, "caption two")
	require.NoError(t, err)
	assert.Equal(t, "", edited.OriginalText)
	assert.Equal(t, "caption two", edited.Text)
}

func TestFileSendDuringOutageUsesFallback(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	ctx := context.Background()
	bob := connect(t, h, "bob")
	drain(t, bob)
	repo.SetFailWrites(true)

	msg, err := h.SendFile(ctx, "alice", domain.FileRef{FileID: "f1", FileName: "a.png", FileMime: "image/png"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d+-[0-9a-f]{7}$`), msg.ID)
	require.NotNil(t, msg.File)

	stored, ok := h.Fallback().Find(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "f1", stored.File.FileID)
	require.Len(t, only(drain(t, bob), EventMessageNew), 1)
}

func TestDeleteAndUnsend(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	ctx := context.Background()
	alice := connect(t, h, "alice")

	msg, err := h.SendFile(ctx, "alice", domain.FileRef{FileID: "f1", FileName: "a.png", FileMime: "image/png"})
	require.NoError(t, err)
	drain(t, alice)

	_, err = h.Delete(ctx, "bob", msg.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthor)

	deleted, err := h.Delete(ctx, "alice", msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, domain.DeletedMarker, deleted.Text)
	assert.Nil(t, deleted.File)

	stored, err := repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)

	assert.ErrorIs(t, h.Unsend(ctx, "bob", msg.ID), domain.ErrNotAuthor)
	require.NoError(t, h.Unsend(ctx, "alice", msg.ID))
	_, err = repo.FindByID(ctx, msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	frames := only(drain(t, alice), EventMessageDeleted)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"messageId":"`+msg.ID+`","msg":null}`, string(frames[1].Data))
}

func TestUnsendFallbackMessage(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	ctx := context.Background()
	repo.SetUnavailable(true)

	msg, err := h.SendText(ctx, "alice", "gone soon")
	require.NoError(t, err)
	require.NoError(t, h.Unsend(ctx, "alice", msg.ID))
	assert.Equal(t, 0, h.Fallback().Len())
}

func TestSaveFailureIsReported(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	ctx := context.Background()
	alice := connect(t, h, "alice")

	msg, err := h.SendText(ctx, "alice", "x")
	require.NoError(t, err)
	drain(t, alice)

	repo.SetFailWrites(true)
	_, err = h.ToggleLike(ctx, "bob", msg.ID)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, only(drain(t, alice), EventMessageLiked))
}

func TestUnregisterClearsTypingAndPresence(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	alice := connect(t, h, "alice")
	aliceTab := connect(t, h, "alice")
	bob := connect(t, h, "bob")

	h.SetTyping("alice", true)
	assert.Equal(t, []string{"alice"}, h.Typing().Snapshot())
	drain(t, bob)

	h.Unregister(alice)
	h.Unregister(alice)
	assert.Empty(t, h.Typing().Snapshot())
	assert.Equal(t, []string{"alice", "bob"}, h.Presence().Snapshot())

	frames := drain(t, bob)
	require.Len(t, frames, 2)
	assert.Equal(t, EventTypingUpdate, frames[0].Event)
	assert.Equal(t, EventPresenceUpdate, frames[1].Event)

	h.Unregister(aliceTab)
	assert.Equal(t, []string{"bob"}, h.Presence().Snapshot())
	assert.Equal(t, 1, h.ClientCount())
}

func TestConcurrentConnectionsKeepPresenceConsistent(t *testing.T) {
	h, _ := newTestHub(t, Options{SendBuffer: 4096})
	observer := connect(t, h, "observer")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(h, nil, Session{Identity: "alice", Authenticated: true})
			assert.NoError(t, h.Register(context.Background(), c))
			h.Unregister(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"observer"}, h.Presence().Snapshot())

	updates := only(drain(t, observer), EventPresenceUpdate)
	require.NotEmpty(t, updates)
	var last presencePayload
	require.NoError(t, json.Unmarshal(updates[len(updates)-1].Data, &last))
	assert.Equal(t, []string{"observer"}, last.Online)
}

func TestSlowClientIsDropped(t *testing.T) {
	h, _ := newTestHub(t, Options{SendBuffer: 2})
	slow := connect(t, h, "slow")
	// presence and init fill the slow client's buffer, so the next
	// broadcast drops it
	fast := connect(t, h, "fast")
	drain(t, fast)

	_, err := h.SendText(context.Background(), "fast", "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, h.ClientCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.BroadcastDropped))
	require.Len(t, only(drain(t, fast), EventMessageNew), 1)

	// the dropped client's channel is closed after its queued frames
	count := 0
	for range slow.Outbox() {
		count++
	}
	assert.Equal(t, 2, count)

	h.Unregister(slow)
	assert.Equal(t, []string{"fast"}, h.Presence().Snapshot())
}

func TestShutdownRejectsNewClients(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, h.Shutdown(ctx))
	c := NewClient(h, nil, Session{Identity: "late", Authenticated: true})
	assert.ErrorIs(t, h.Register(context.Background(), c), ErrHubClosed)
}

func TestServeAfterShutdownReturnsImmediately(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	c := NewClient(h, nil, Session{Identity: "late", Authenticated: true})
	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return on a closed hub")
	}
	assert.False(t, c.Active())
	assert.Equal(t, 0, h.ClientCount())
	assert.Empty(t, h.Presence().Snapshot())
	require.NoError(t, h.Shutdown(ctx))
}
