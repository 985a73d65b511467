package realtime

import (
	"encoding/json"
)

// Commands accepted on the socket
const (
	CmdMsgGet    = "msg/get"
	CmdMsgPost   = "msg/post"
	CmdMsgDelete = "msg/delete"

	CmdGroupGet    = "group/get"
	CmdGroupDelete = "group/delete"

	CmdGroupDefaultsGet    = "group-defaults/get"
	CmdGroupDefaultsPost   = "group-defaults/post"
	CmdGroupDefaultsDelete = "group-defaults/delete"

	CmdStoreGet = "store/get"
	CmdStorePut = "store/put"

	CmdStatsGet    = "stats/get"
	CmdStatsPut    = "stats/put"
	CmdStatsDelete = "stats/delete"

	CmdExport = "export"

	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"

	// CmdEvent tags server-pushed lifecycle events.
	CmdEvent = "event"
	// CmdUnknown answers frames that name no command.
	CmdUnknown = "unknown"
)

// Command is a client frame.
type Command struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// Reply answers a Command. Status follows HTTP status codes.
type Reply struct {
	Cmd     string `json:"cmd"`
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventFrame carries a published lifecycle event.
type EventFrame struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// MsgPostPayload submits an inline message.
type MsgPostPayload struct {
	Priority *uint32 `json:"priority" validate:"required"`
	Msg      string  `json:"msg"`
}

// MsgGetReply is the retrieved message. Blob messages carry their metadata in
// Msg and the blob size instead of the blob bytes.
type MsgGetReply struct {
	UUID     string `json:"uuid"`
	Msg      string `json:"msg"`
	HasBlob  bool   `json:"hasBlob,omitempty"`
	BlobSize int64  `json:"blobSize,omitempty"`
}

// SubscribePayload selects which events a client receives. An empty list
// means every event.
type SubscribePayload struct {
	Events []string `json:"events" validate:"dive,oneof=inserted deleted pruned exported"`
}
