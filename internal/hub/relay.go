package hub

import "encoding/json"

// CallSignal is an inbound call-control payload. The bodies are opaque and
// forwarded untouched.
type CallSignal struct {
	To        string          `json:"to,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type relayedSignal struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// outbound name for each relayed inbound event
var relayEvents = map[string]string{
	EventCallInitiate: EventCallIncoming,
	EventCallOffer:    EventCallOffer,
	EventCallAnswer:   EventCallAnswer,
	EventCallICE:      EventCallICE,
	EventCallEnd:      EventCallEnd,
}

func isRelayEvent(event string) bool {
	_, ok := relayEvents[event]
	return ok
}

// Relay forwards a call signal from identity from. With an empty target the
// signal goes to every connection, otherwise to each connection of the
// target identity. Call state is not validated.
func (h *Hub) Relay(from, event string, sig CallSignal) error {
	outbound, ok := relayEvents[event]
	if !ok {
		return errUnknownEvent
	}

	payload := relayedSignal{From: from, To: sig.To}
	switch event {
	case EventCallOffer:
		payload.Offer = sig.Offer
	case EventCallAnswer:
		payload.Answer = sig.Answer
	case EventCallICE:
		payload.Candidate = sig.Candidate
	}

	if sig.To == "" {
		h.broadcast(outbound, payload)
		return nil
	}
	h.sendToIdentity(sig.To, outbound, payload)
	return nil
}
