package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/gateway/rest"
	"github.com/syntrixbase/msgstore/internal/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256
)

// Client is a middleman between the websocket connection and the engine.
type Client struct {
	hub *Hub
	svc rest.Service

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// ctx is cancelled when the connection closes.
	ctx    context.Context
	cancel context.CancelFunc

	// Maximum frame size allowed from peer. Frames carry whole messages.
	maxMessageSize int64

	mu         sync.Mutex
	subscribed bool
	events     map[string]bool

	logger *slog.Logger
}

func newClient(hub *Hub, svc rest.Service, conn *websocket.Conn, maxMessageSize int64, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:            hub,
		svc:            svc,
		conn:           conn,
		maxMessageSize: maxMessageSize,
		send:           make(chan []byte, sendBufferSize),
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
	}
}

// wants reports whether the client subscribed to the named event.
func (c *Client) wants(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return false
	}
	return len(c.events) == 0 || c.events[event]
}

func (c *Client) subscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
	c.events = make(map[string]bool, len(events))
	for _, e := range events {
		c.events[e] = true
	}
}

func (c *Client) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = false
	c.events = nil
}

// readPump pumps commands from the websocket connection to the engine.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()
	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	c.logger.Info("WebSocket connection established", "remote", c.conn.RemoteAddr().String())

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket connection closed", "error", err)
			} else {
				c.logger.Info("WebSocket connection closed")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(Reply{Cmd: CmdUnknown, Status: http.StatusBadRequest, Code: rest.ErrCodeBadRequest, Message: "body must be a json object"})
			continue
		}
		c.reply(c.handleCommand(cmd))
	}
}

func (c *Client) reply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Error("Failed to encode reply", "cmd", r.Cmd, "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

// close stops both pumps.
func (c *Client) close() {
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
}

func okReply(cmd string, data any) Reply {
	return Reply{Cmd: cmd, Status: http.StatusOK, Data: data}
}

func (c *Client) fail(cmd string, err error) Reply {
	status, code, message := rest.Classify(err)
	if status >= 500 {
		c.logger.Error(cmd+" failed", "error", err)
	}
	return Reply{Cmd: cmd, Status: status, Code: code, Message: message}
}

// handleCommand runs one command against the engine.
func (c *Client) handleCommand(cmd Command) Reply {
	ctx := c.ctx
	switch cmd.Cmd {
	case CmdMsgGet:
		q, err := rest.DecodeJSON[rest.MessageQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return c.getMessage(cmd.Cmd, q)

	case CmdMsgPost:
		p, err := rest.DecodeJSON[MsgPostPayload](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		raw := wire.EncodeSubmission(*p.Priority, nil, []byte(p.Msg))
		sub, err := wire.Decode(bytes.NewReader(raw), false)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		id, err := c.svc.Insert(ctx, sub)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, rest.PostMessageResponse{UUID: id})

	case CmdMsgDelete:
		q, err := rest.DecodeJSON[rest.DeleteMessageQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		id, err := msgid.Parse(q.UUID)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		if err := c.svc.Delete(ctx, id); err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, nil)

	case CmdGroupGet:
		q, err := rest.DecodeJSON[rest.GroupQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		groups := c.svc.Groups(q.Priority, q.IncludeMsgData)
		if q.Priority == nil {
			return okReply(cmd.Cmd, groups)
		}
		if len(groups) == 0 {
			return okReply(cmd.Cmd, nil)
		}
		return okReply(cmd.Cmd, groups[0])

	case CmdGroupDelete:
		q, err := rest.DecodeJSON[rest.DeleteGroupQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		n, err := c.svc.DeleteGroup(ctx, *q.Priority)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, rest.GroupDeleteResponse{Deleted: n})

	case CmdGroupDefaultsGet:
		q, err := rest.DecodeJSON[rest.GroupQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, c.svc.GroupDefaults(q.Priority))

	case CmdGroupDefaultsPost:
		req, err := rest.DecodeJSON[rest.GroupDefaultRequest](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		pruned, err := c.svc.SetGroupDefault(ctx, *req.Priority, *req.MaxByteSize)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, rest.PruneResponse{Pruned: pruned})

	case CmdGroupDefaultsDelete:
		q, err := rest.DecodeJSON[rest.DeleteGroupQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		existed, err := c.svc.DeleteGroupDefault(ctx, *q.Priority)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, rest.DeletedResponse{Deleted: existed})

	case CmdStoreGet:
		q, err := rest.DecodeJSON[rest.GroupQuery](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, c.svc.StoreSnapshot(q.IncludeMsgData))

	case CmdStorePut:
		req, err := rest.DecodeJSON[rest.StoreRequest](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		pruned, err := c.svc.SetStoreMax(ctx, req.MaxByteSize)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, rest.PruneResponse{Pruned: pruned})

	case CmdStatsGet:
		return okReply(cmd.Cmd, c.svc.Stats())

	case CmdStatsPut:
		req, err := rest.DecodeJSON[rest.StatsRequest](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		if req.Add {
			return okReply(cmd.Cmd, c.svc.AddStats(req.Update()))
		}
		return okReply(cmd.Cmd, c.svc.ReplaceStats(req.Update()))

	case CmdStatsDelete:
		return okReply(cmd.Cmd, c.svc.ResetStats())

	case CmdExport:
		req, err := rest.DecodeJSON[rest.ExportRequest](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		res, err := c.svc.Export(ctx, req.Directory)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		return okReply(cmd.Cmd, res)

	case CmdSubscribe:
		p, err := rest.DecodeJSON[SubscribePayload](cmd.Data)
		if err != nil {
			return c.fail(cmd.Cmd, err)
		}
		c.subscribe(p.Events)
		return okReply(cmd.Cmd, nil)

	case CmdUnsubscribe:
		c.unsubscribe()
		return okReply(cmd.Cmd, nil)

	case "":
		return Reply{Cmd: CmdUnknown, Status: http.StatusBadRequest, Code: rest.ErrCodeBadRequest, Message: "cmd is required"}

	default:
		return Reply{Cmd: cmd.Cmd, Status: http.StatusNotFound, Code: "UNKNOWN_COMMAND", Message: "unknown command"}
	}
}

// getMessage retrieves a message without its blob bytes.
func (c *Client) getMessage(cmd string, q *rest.MessageQuery) Reply {
	sel, err := q.Selector()
	if err != nil {
		return c.fail(cmd, err)
	}
	stream, err := c.svc.Retrieve(c.ctx, sel)
	if err != nil {
		return c.fail(cmd, err)
	}
	if stream == nil {
		// An explicit null tells the client no message matched.
		return okReply(cmd, json.RawMessage("null"))
	}
	defer stream.Close()

	id := stream.ID().String()
	// The header is "uuid=<id>?<body>" inline or "uuid=<id>&<metadata>?" for blobs.
	tail := stream.Header()[len("uuid=")+len(id):]
	if stream.HasBlob() {
		meta := bytes.TrimSuffix(bytes.TrimPrefix(tail, []byte{'&'}), []byte{'?'})
		return okReply(cmd, MsgGetReply{UUID: id, Msg: string(meta), HasBlob: true, BlobSize: stream.BlobSize()})
	}
	return okReply(cmd, MsgGetReply{UUID: id, Msg: string(bytes.TrimPrefix(tail, []byte{'?'}))})
}

// writePump pumps frames to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errInvalidEvent = errors.New("event payload is not valid json")

func encodeEvent(data []byte) ([]byte, error) {
	if !json.Valid(data) {
		return nil, errInvalidEvent
	}
	return json.Marshal(EventFrame{Cmd: CmdEvent, Data: data})
}
