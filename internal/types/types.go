package types

import (
	"github.com/DoyleJ11/connect4-sync/internal/engine"
	"github.com/DoyleJ11/connect4-sync/internal/flow"
)

// Client message types.
const (
	MsgPlayLocal       = "PlayLocal"
	MsgOpenMultiplayer = "OpenMultiplayer"
	MsgShowJoin        = "ShowJoin"
	MsgCreateRoom      = "CreateRoom"
	MsgJoinRoom        = "JoinRoom"
	MsgDrop            = "Drop"
	MsgRestart         = "Restart"
	MsgBack            = "Back"
	MsgLeave           = "Leave"
)

// Server message types.
const (
	MsgEvent = "Event"
	MsgView  = "View"
	MsgError = "Error"
)

type ClientMessage struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Column *int   `json:"column,omitempty"`
}

type ServerMessage struct {
	Type  string        `json:"type"` // "Event" | "View" | "Error"
	Event *engine.Event `json:"event,omitempty"`
	View  *flow.View    `json:"view,omitempty"`
	Error string        `json:"error,omitempty"`
}
