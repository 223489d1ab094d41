// Package hub coordinates live chat connections: presence, typing, message
// fan-out with an in-memory fallback history, and call signaling relay.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"privchat/internal/domain"
	"privchat/internal/repository"
	"privchat/pkg/logger"
)

var (
	ErrHubClosed         = errors.New("hub is shut down")
	ErrAlreadyRegistered = errors.New("client already registered")
)

type Options struct {
	HistoryLimit     int
	FallbackCapacity int
	SendBuffer       int
	MaxMessageSize   int64
	RateLimitRPS     float64
	RateLimitBurst   int
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = domain.HistoryLimit
	}
	if o.FallbackCapacity <= 0 {
		o.FallbackCapacity = 1000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 1
	}
	return o
}

type Hub struct {
	repo     repository.MessageRepository
	log      logger.Logger
	metrics  *Metrics
	opts     Options
	presence *Presence
	typing   *Typing
	fallback *Fallback
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func New(repo repository.MessageRepository, opts Options, metrics *Metrics, log logger.Logger) *Hub {
	opts = opts.withDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		repo:     repo,
		log:      log,
		metrics:  metrics,
		opts:     opts,
		presence: NewPresence(),
		typing:   NewTyping(),
		fallback: NewFallback(opts.FallbackCapacity),
		now:      func() time.Time { return time.Now().UTC() },
		clients:  make(map[*Client]struct{}),
	}
}

func (h *Hub) Presence() *Presence { return h.presence }

func (h *Hub) Typing() *Typing { return h.typing }

func (h *Hub) Fallback() *Fallback { return h.fallback }

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve runs c until its socket closes. It blocks in the read pump; the
// write pump runs in its own goroutine.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	// Add under h.mu so it cannot race with Shutdown's Wait.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.closeConn()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	if err := h.Register(ctx, c); err != nil {
		c.closeConn()
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	c.readPump(ctx)
}

// Register activates c, announces the new presence set and sends c the
// recent history.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if !c.activate() {
		h.mu.Unlock()
		return ErrAlreadyRegistered
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	h.log.Info("Client connected", "client_id", c.id, "identity", c.Identity(), "clients", total)

	h.presence.Connect(c.Identity(), h.publishPresence)
	h.unicast(c, EventInit, initPayload{Messages: h.History(ctx)})
	return nil
}

// Unregister removes c and clears its typing and presence state. Safe to
// call more than once.
func (h *Hub) Unregister(c *Client) {
	if !c.deactivate() {
		return
	}

	h.mu.Lock()
	wasMember := false
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		wasMember = true
	}
	total := len(h.clients)
	h.mu.Unlock()

	// A client dropped for a full buffer has already left the set but
	// still holds presence.
	h.typing.Clear(c.Identity(), h.publishTyping)
	h.presence.Disconnect(c.Identity(), h.publishPresence)

	h.metrics.Connections.Dec()
	h.log.Info("Client disconnected", "client_id", c.id, "identity", c.Identity(), "clients", total, "dropped", !wasMember)
}

// History returns the newest messages, from the repository when it answers
// and from the fallback buffer otherwise.
func (h *Hub) History(ctx context.Context) []*domain.Message {
	messages, err := h.repo.ListRecent(ctx, h.opts.HistoryLimit)
	if err != nil {
		h.log.Warn("Failed to load history, serving fallback buffer", "error", err)
		h.metrics.FallbackReads.Inc()
		return h.fallback.Last(h.opts.HistoryLimit)
	}
	return messages
}

func (h *Hub) SendText(ctx context.Context, identity, text string) (*domain.Message, error) {
	message, err := domain.NewTextMessage(identity, text)
	if err != nil {
		return nil, err
	}
	return h.create(ctx, message)
}

func (h *Hub) SendFile(ctx context.Context, identity string, file domain.FileRef) (*domain.Message, error) {
	message, err := domain.NewFileMessage(identity, file)
	if err != nil {
		return nil, err
	}
	return h.create(ctx, message)
}

func (h *Hub) create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	if err := h.repo.Create(ctx, message); err != nil {
		h.log.Warn("Failed to persist message, keeping it in fallback buffer", "identity", message.Username, "error", err)
		message.CreatedAt = h.now()
		message.ID = NewFallbackID(message.CreatedAt)
		h.fallback.Append(message)
		h.metrics.FallbackWrites.Inc()
	}
	h.broadcast(EventMessageNew, message)
	return message.Clone(), nil
}

// load finds a message in the repository, then in the fallback buffer.
// inFallback tells the caller where mutations must be written.
func (h *Hub) load(ctx context.Context, id string) (message *domain.Message, inFallback bool, err error) {
	if id == "" {
		return nil, false, domain.ErrMissingField
	}
	message, err = h.repo.FindByID(ctx, id)
	if err == nil {
		return message, false, nil
	}
	if fb, ok := h.fallback.Find(id); ok {
		return fb, true, nil
	}
	if !errors.Is(err, domain.ErrMessageNotFound) {
		h.log.Warn("Failed to load message", "message_id", id, "error", err)
	}
	return nil, false, err
}

func (h *Hub) store(ctx context.Context, message *domain.Message, inFallback bool) error {
	if inFallback {
		if !h.fallback.Update(message) {
			return domain.ErrMessageNotFound
		}
		return nil
	}
	return h.repo.Save(ctx, message)
}

func (h *Hub) ToggleLike(ctx context.Context, identity, messageID string) ([]string, error) {
	message, inFallback, err := h.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	likers := message.ToggleLike(identity)
	if err := h.store(ctx, message, inFallback); err != nil {
		return nil, err
	}
	h.broadcast(EventMessageLiked, likedPayload{MessageID: message.ID, Likers: likers})
	return likers, nil
}

func (h *Hub) Edit(ctx context.Context, identity, messageID, text string) (*domain.Message, error) {
	if text == "" {
		return nil, domain.ErrMissingField
	}
	message, inFallback, err := h.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := message.ApplyEdit(identity, text, h.now()); err != nil {
		return nil, err
	}
	if err := h.store(ctx, message, inFallback); err != nil {
		return nil, err
	}
	h.broadcast(EventMessageEdited, changedPayload{MessageID: message.ID, Msg: message})
	return message, nil
}

// Delete soft-deletes: the record stays with its content scrubbed.
func (h *Hub) Delete(ctx context.Context, identity, messageID string) (*domain.Message, error) {
	message, inFallback, err := h.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := message.SoftDelete(identity); err != nil {
		return nil, err
	}
	if err := h.store(ctx, message, inFallback); err != nil {
		return nil, err
	}
	h.broadcast(EventMessageDeleted, changedPayload{MessageID: message.ID, Msg: message})
	return message, nil
}

// Unsend removes the message entirely. Only its author may do this.
func (h *Hub) Unsend(ctx context.Context, identity, messageID string) error {
	message, inFallback, err := h.load(ctx, messageID)
	if err != nil {
		return err
	}
	if err := message.CanUnsend(identity); err != nil {
		return err
	}
	if inFallback {
		if !h.fallback.Remove(messageID) {
			return domain.ErrMessageNotFound
		}
	} else if err := h.repo.DeleteByID(ctx, messageID); err != nil {
		return err
	}
	h.broadcast(EventMessageDeleted, changedPayload{MessageID: messageID})
	return nil
}

func (h *Hub) SetTyping(identity string, typing bool) []string {
	return h.typing.Set(identity, typing, h.publishTyping)
}

func (h *Hub) publishPresence(online []string) {
	h.broadcast(EventPresenceUpdate, presencePayload{Online: online})
}

func (h *Hub) publishTyping(users []string) {
	h.broadcast(EventTypingUpdate, typingUpdatePayload{Users: users})
}

func (h *Hub) broadcast(event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		h.log.Error("Failed to encode broadcast", "event", event, "error", err)
		return
	}
	h.fanOut(frame, func(*Client) bool { return true })
}

// sendToIdentity delivers to every connection of identity.
func (h *Hub) sendToIdentity(identity, event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		h.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	h.fanOut(frame, func(c *Client) bool { return c.Identity() == identity })
}

func (h *Hub) unicast(c *Client, event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		h.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	h.fanOut(frame, func(target *Client) bool { return target == c })
}

// reply sends an ack when the inbound frame asked for one.
func (h *Hub) reply(c *Client, env Envelope, data AckData) {
	if env.Ack == nil {
		return
	}
	frame := encodeAck(*env.Ack, data)
	h.fanOut(frame, func(target *Client) bool { return target == c })
}

// fanOut enqueues frame without blocking. Clients whose buffer is full are
// removed and their socket closed; their read pump then unregisters them.
func (h *Hub) fanOut(frame []byte, match func(*Client) bool) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range slow {
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
			h.metrics.BroadcastDropped.Inc()
			h.log.Warn("Dropping client with full send buffer", "client_id", c.id, "identity", c.Identity())
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		c.closeConn()
	}
}

// Shutdown closes every connection and waits for their pumps to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.log.Info("Shutting down hub", "clients", len(clients))
	for _, c := range clients {
		c.closeConn()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.log.Warn("Hub shutdown timed out, some connections may still be open")
		return ctx.Err()
	}
}
