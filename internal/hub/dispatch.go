package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"privchat/internal/domain"
)

var errUnknownEvent = errors.New("unknown event")

// Event outcome labels for chat_events_total.
const (
	outcomeOK              = "ok"
	outcomeRejected        = "rejected"
	outcomeUnauthenticated = "unauthenticated"
	outcomeRateLimited     = "rate_limited"
	outcomePanic           = "panic"
)

// Dispatch handles one inbound event for c and answers its ack, if any.
// A panic in a handler is logged and answered with ok=false; the
// connection stays open.
func (h *Hub) Dispatch(ctx context.Context, c *Client, env Envelope) {
	outcome := outcomeOK
	label := eventLabel(env.Event)
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomePanic
			h.log.Error("Recovered from panic while handling event",
				"event", env.Event, "identity", c.Identity(), "panic", r, "stack", string(debug.Stack()))
			h.reply(c, env, ackFailed())
		}
		h.metrics.Events.WithLabelValues(label, outcome).Inc()
	}()

	if !c.session.Active(h.now()) {
		outcome = outcomeUnauthenticated
		h.reply(c, env, ackFailed())
		return
	}

	if isRelayEvent(env.Event) {
		var sig CallSignal
		if err := decode(env.Data, &sig); err != nil {
			outcome = outcomeRejected
			h.log.Debug("Discarding call signal", "event", env.Event, "identity", c.Identity(), "error", err)
			return
		}
		if err := h.Relay(c.Identity(), env.Event, sig); err != nil {
			outcome = outcomeRejected
		}
		return
	}

	ack, err := h.handle(ctx, c.Identity(), env)
	if err != nil {
		outcome = outcomeRejected
		h.log.Debug("Event rejected", "event", env.Event, "identity", c.Identity(), "error", err)
		h.reply(c, env, ackFailed())
		return
	}
	h.reply(c, env, ack)
}

func (h *Hub) handle(ctx context.Context, identity string, env Envelope) (AckData, error) {
	switch env.Event {
	case EventMessageSend:
		var p sendTextPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		message, err := h.SendText(ctx, identity, p.Text)
		if err != nil {
			return nil, err
		}
		return AckData{"ok": true, "message": message}, nil

	case EventMessageFile:
		var p domain.FileRef
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		message, err := h.SendFile(ctx, identity, p)
		if err != nil {
			return nil, err
		}
		return AckData{"ok": true, "message": message}, nil

	case EventMessageLike:
		var p messageRefPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		likers, err := h.ToggleLike(ctx, identity, p.MessageID)
		if err != nil {
			return nil, err
		}
		return AckData{"ok": true, "likers": likers}, nil

	case EventMessageEdit:
		var p editPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		message, err := h.Edit(ctx, identity, p.MessageID, p.Text)
		if err != nil {
			return nil, err
		}
		return AckData{"ok": true, "message": message}, nil

	case EventMessageDelete:
		var p messageRefPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		message, err := h.Delete(ctx, identity, p.MessageID)
		if err != nil {
			return nil, err
		}
		return AckData{"ok": true, "message": message}, nil

	case EventTyping:
		var p typingPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		h.SetTyping(identity, p.IsTyping)
		return ackOK(), nil

	default:
		return nil, errUnknownEvent
	}
}

// decode treats a missing payload as an empty object.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMissingField, err)
	}
	return nil
}
