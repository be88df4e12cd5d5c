package dashboard

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"ghrelay/internal/eventbus"
	logx "ghrelay/pkg/logx"
)

// hub fans bus events out to connected websocket clients.
type hub struct {
	bus        eventbus.Bus
	log        logx.Logger
	clients    map[*client]bool
	broadcast  chan broadcastMessage
	register   chan *client
	unregister chan *client
}

type broadcastMessage struct {
	event string
	data  []byte
}

func newHub(bus eventbus.Bus, log logx.Logger) *hub {
	return &hub{
		bus:        bus,
		log:        log,
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMessage, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// run pumps bus events to clients until ctx is canceled.
func (h *hub) run(ctx context.Context) {
	events, unsub := h.bus.Subscribe(64)
	defer unsub()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			h.send(broadcastMessage{event: e.Type, data: data})
		case m := <-h.broadcast:
			h.send(m)
		}
	}
}

func (h *hub) send(m broadcastMessage) {
	for c := range h.clients {
		if !c.subscribedTo(m.event) {
			continue
		}
		select {
		case c.send <- m.data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

type client struct {
	hub      *hub
	conn     *websocket.Conn
	send     chan []byte
	events   []string
	eventsMu sync.RWMutex
	log      logx.Logger
}

type subscribeMessage struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "subscribe" {
			continue
		}
		c.setEvents(msg.Events)
		c.log.Debug("ws subscription updated",
			logx.String("remote", c.conn.RemoteAddr().String()),
			logx.Any("events", msg.Events))
	}
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *client) setEvents(events []string) {
	c.eventsMu.Lock()
	if len(events) == 0 {
		c.events = nil
	} else {
		c.events = append([]string(nil), events...)
	}
	c.eventsMu.Unlock()
}

// subscribedTo defaults to all events when no filter was sent.
func (c *client) subscribedTo(event string) bool {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	if len(c.events) == 0 {
		return true
	}
	for _, candidate := range c.events {
		if candidate == event {
			return true
		}
	}
	return false
}
