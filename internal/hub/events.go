package hub

import (
	"encoding/json"
	"fmt"

	"privchat/internal/domain"
)

// Inbound event names.
const (
	EventMessageSend   = "message.send"
	EventMessageFile   = "message.file"
	EventMessageLike   = "message.like"
	EventMessageEdit   = "message.edit"
	EventMessageDelete = "message.delete"
	EventTyping        = "typing"
	EventCallInitiate  = "call.initiate"
	EventCallOffer     = "call.offer"
	EventCallAnswer    = "call.answer"
	EventCallICE       = "call.ice"
	EventCallEnd       = "call.end"
)

// Outbound event names.
const (
	EventInit           = "init"
	EventMessageNew     = "message.new"
	EventMessageLiked   = "message.liked"
	EventMessageEdited  = "message.edited"
	EventMessageDeleted = "message.deleted"
	EventPresenceUpdate = "presence.update"
	EventTypingUpdate   = "typing.update"
	EventCallIncoming   = "call.incoming"
	EventAck            = "ack"
)

var inboundEvents = map[string]struct{}{
	EventMessageSend: {}, EventMessageFile: {}, EventMessageLike: {}, EventMessageEdit: {},
	EventMessageDelete: {}, EventTyping: {}, EventCallInitiate: {}, EventCallOffer: {},
	EventCallAnswer: {}, EventCallICE: {}, EventCallEnd: {},
}

// eventLabel bounds metric label cardinality to the known event names.
func eventLabel(event string) string {
	if _, ok := inboundEvents[event]; ok {
		return event
	}
	return "unknown"
}

// Envelope is a single websocket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

// AckData is the body of an ack reply. It always carries "ok".
type AckData map[string]interface{}

func ackOK() AckData {
	return AckData{"ok": true}
}

func ackFailed() AckData {
	return AckData{"ok": false}
}

type sendTextPayload struct {
	Text string `json:"text"`
}

type messageRefPayload struct {
	MessageID string `json:"messageId"`
}

type editPayload struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type initPayload struct {
	Messages []*domain.Message `json:"messages"`
}

type likedPayload struct {
	MessageID string   `json:"messageId"`
	Likers    []string `json:"likers"`
}

// changedPayload is used for message.edited and message.deleted. Msg is null
// when the message was removed outright.
type changedPayload struct {
	MessageID string          `json:"messageId"`
	Msg       *domain.Message `json:"msg"`
}

type presencePayload struct {
	Online []string `json:"online"`
}

type typingUpdatePayload struct {
	Users []string `json:"users"`
}

func encode(event string, data interface{}) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: body})
}

func encodeAck(id int64, data AckData) []byte {
	body, err := json.Marshal(data)
	if err != nil {
		body = []byte(`{"ok":false}`)
	}
	frame, _ := json.Marshal(Envelope{Event: EventAck, Data: body, Ack: &id})
	return frame
}
