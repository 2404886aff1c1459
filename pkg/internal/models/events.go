package models

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// Wire tags of the signaling push channel.
const (
	PushTypeIncomingCall = "incoming_call"
	PushTypeAccepted     = "accepted"
	PushTypeBusy         = "busy"
	PushTypeEndCall      = "end_call"
)

// PushEvent is the closed set of signaling events the push channel can
// deliver. Payloads are parsed and validated at the boundary; the call
// controller only ever sees one of the four variants below.
type PushEvent interface {
	PushType() string
}

type IncomingCallEvent struct {
	Room string
	From UserInfo
}

func (IncomingCallEvent) PushType() string { return PushTypeIncomingCall }

type CallAcceptedEvent struct {
	Room string
}

func (CallAcceptedEvent) PushType() string { return PushTypeAccepted }

type CallBusyEvent struct {
	Room string
	By   UserInfo
}

func (CallBusyEvent) PushType() string { return PushTypeBusy }

type CallEndedEvent struct {
	Room string
}

func (CallEndedEvent) PushType() string { return PushTypeEndCall }

// Chat socket event names.
const (
	ChatEventJoin       = "chat:join"
	ChatEventLeave      = "chat:leave"
	ChatEventActive     = "chat:active"
	ChatEventInactive   = "chat:inactive"
	ChatEventHistory    = "chat:history"
	ChatEventMessage    = "chat:message"
	ChatEventMessageAck = "chat:message:ack"
)

// SocketFrame is the envelope of the chat socket. Frames carrying an Ack id
// expect (or answer) an acknowledgement frame with the same id.
type SocketFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

func (f SocketFrame) Marshal() []byte {
	raw, _ := jsoniter.Marshal(f)
	return raw
}
