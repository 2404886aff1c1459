package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallState string

const (
	CallStateIdle    = CallState("idle")
	CallStateJoining = CallState("joining")
	CallStateInCall  = CallState("inCall")
	CallStateLeaving = CallState("leaving")
	CallStateEnded   = CallState("ended")
	CallStateError   = CallState("error")
)

// JoinInfo is the credential bundle the signaling backend returns on
// start/accept. The call controller never looks inside it; it is handed
// as-is to the media engine.
type JoinInfo struct {
	Endpoint string `json:"endpoint" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

// IncomingCallOffer is the transient inbound invitation. It lives from the
// incoming_call push event until the user accepts or declines, or until a
// newer offer supersedes it.
type IncomingCallOffer struct {
	Room string   `json:"room"`
	From UserInfo `json:"from"`
}

// CallRecord is the client-local call log row written when a call that
// reached inCall is torn down.
type CallRecord struct {
	BaseModel

	Room      string            `json:"room"`
	Peer      datatypes.JSONMap `json:"peer"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
	Duration  int64             `json:"duration"`
}
