package vis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/model"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 256 // buffered channel size, drops events when full
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient wraps a WebSocket connection and implements Client.
type WSClient struct {
	conn   *websocket.Conn
	srv    *Server
	sendCh chan Message
	done   chan struct{}
}

// NewWSClient creates a WSClient and registers it with the hub.
func NewWSClient(conn *websocket.Conn, srv *Server) *WSClient {
	c := &WSClient{
		conn:   conn,
		srv:    srv,
		sendCh: make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
	srv.hub.Register(c)
	go c.writeLoop()
	return c
}

// SendMessage queues a message for async delivery. Non-blocking: event
// messages are dropped when the buffer is full, control replies force
// room by evicting one queued event.
func (c *WSClient) SendMessage(msg Message) error {
	select {
	case c.sendCh <- msg:
		return nil
	default:
		if msg.Type != "event" {
			select {
			case <-c.sendCh:
				c.sendCh <- msg
			default:
				select {
				case c.sendCh <- msg:
				default:
				}
			}
		}
		return nil
	}
}

// writeLoop drains the send channel and writes to the WebSocket.
func (c *WSClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

			// Drain queued messages in a single write burst.
			n := len(c.sendCh)
			for i := 0; i < n; i++ {
				msg = <-c.sendCh
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(msg); err != nil {
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop reads messages from the client and dispatches commands.
// sendCh is never closed: the hub may still hold a snapshot of this
// client when the loop ends, so shutdown is signalled through done and
// late SendMessage calls fall into the non-blocking drop path.
func (c *WSClient) ReadLoop() {
	defer func() {
		c.srv.hub.Unregister(c)
		close(c.done)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleCommand(msg)
	}
}

func (c *WSClient) handleCommand(msg Message) {
	_, span := startCommandSpan(context.Background(), msg.Type)
	defer span.End()

	if err := c.dispatch(msg); err != nil {
		span.RecordError(err)
		c.sendError(err.Error())
	}
}

func (c *WSClient) dispatch(msg Message) error {
	switch msg.Type {
	case "start":
		c.srv.StartSim()
		c.sendStatus()

	case "stop":
		c.srv.StopSim()
		c.sendStatus()

	case "step":
		c.srv.StepOnce()
		c.sendStatus()

	case "set_speed":
		var req SetSpeedRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return errors.New("invalid set_speed payload")
		}
		if err := c.srv.SetSpeed(req.Multiplier); err != nil {
			return err
		}
		c.sendStatus()

	case "create_test_packet":
		var req CreateTestPacketRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return errors.New("invalid create_test_packet payload")
		}
		pkt, err := c.srv.sim.CreateTestPacket(req.Source, req.Target, parseProtocol(req.Protocol), req.VLANID)
		if err != nil {
			return fmt.Errorf("create packet failed: %w", err)
		}
		payload, _ := json.Marshal(pkt)
		c.SendMessage(Message{Type: "packet_created", Payload: payload})

	case "send_broadcast":
		var req BroadcastRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return errors.New("invalid send_broadcast payload")
		}
		copies, err := c.srv.sim.SendBroadcastPacket(req.Source, parseProtocol(req.Protocol), req.VLANID)
		if err != nil {
			return fmt.Errorf("broadcast failed: %w", err)
		}
		payload, _ := json.Marshal(BroadcastResult{Copies: copies})
		c.SendMessage(Message{Type: "broadcast_sent", Payload: payload})

	case "get_status":
		c.sendStatus()

	default:
		return errors.New("unknown command: " + msg.Type)
	}
	return nil
}

func parseProtocol(raw string) model.Protocol {
	if raw == "" {
		return model.ProtocolICMP
	}
	return model.Protocol(strings.ToUpper(raw))
}

func (c *WSClient) sendStatus() {
	payload, _ := json.Marshal(c.srv.Status())
	c.SendMessage(Message{Type: "status", Payload: payload})
}

func (c *WSClient) sendError(message string) {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	c.SendMessage(Message{Type: "error", Payload: payload})
}

// HandleWebSocket is the HTTP handler for WebSocket upgrades.
func HandleWebSocket(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			srv.log.Warn(context.Background(), "websocket upgrade failed",
				logging.String("error", err.Error()))
			return
		}
		client := NewWSClient(conn, srv)
		client.ReadLoop()
	}
}
