// Package progress defines the pipeline's progress-notification boundary:
// ordered percent/stage events plus warnings and per-entry errors, and an
// optional single-client websocket hub for the `serve` subcommand.
package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one ordered message on the progress channel.
type Event struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
}

// Warning is a non-fatal, pipeline-wide condition.
type Warning struct {
	Message string `json:"message"`
}

// EntryError reports a per-entry validation/size rejection (an
// EntrySkipped condition).
type EntryError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Phase  string `json:"phase"`
}

// Sink receives the three kinds of progress-channel message. Each method
// must be cheap and non-blocking; the orchestrator calls them inline.
type Sink interface {
	OnEvent(Event)
	OnWarning(Warning)
	OnEntryError(EntryError)
}

// Checkpoints are the eight fixed percentages the orchestrator publishes at.
var Checkpoints = []Event{
	{Percent: 0, Stage: "scoring"},
	{Percent: 15, Stage: "behavioural"},
	{Percent: 30, Stage: "dependency"},
	{Percent: 45, Stage: "optimisation"},
	{Percent: 60, Stage: "mfa"},
	{Percent: 75, Stage: "tokens"},
	{Percent: 90, Stage: "codegen"},
	{Percent: 100, Stage: "complete"},
}

// NopSink discards everything; used when the caller passes no sink.
type NopSink struct{}

func (NopSink) OnEvent(Event)           {}
func (NopSink) OnWarning(Warning)       {}
func (NopSink) OnEntryError(EntryError) {}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans progress events from one analysis run out to a single
// connected client, adapted from the project's original single-client
// websocket boundary.
type Hub struct {
	client     *client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mutex      sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type wireMessage struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			if h.client != nil {
				close(h.client.send)
			}
			h.client = c
			h.mutex.Unlock()

		case c := <-h.unregister:
			h.mutex.Lock()
			if h.client == c {
				close(h.client.send)
				h.client = nil
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			if h.client != nil {
				select {
				case h.client.send <- message:
				default:
					close(h.client.send)
					h.client = nil
				}
			}
			h.mutex.RUnlock()
		}
	}
}

func (h *Hub) send(kind string, data any) {
	payload, err := json.Marshal(wireMessage{Kind: kind, Data: data})
	if err != nil {
		log.Printf("progress: failed to marshal %s message: %v", kind, err)
		return
	}
	h.mutex.RLock()
	hasClient := h.client != nil
	h.mutex.RUnlock()
	if hasClient {
		h.broadcast <- payload
	}
}

func (h *Hub) OnEvent(e Event)           { h.send("event", e) }
func (h *Hub) OnWarning(w Warning)       { h.send("warning", w) }
func (h *Hub) OnEntryError(e EntryError) { h.send("entry_error", e) }

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("progress: websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("progress: readPump error: %v", err)
			}
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
