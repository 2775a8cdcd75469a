// Package hub fans dispatch events out to realtime subscribers. Rooms follow
// the branch/display/ticket split: staff dashboards join branch:{id}, lobby
// TVs join display:{id}, customers tracking one ticket join ticket:{id}.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	EventTicketCreated     = "ticket:created"
	EventTicketCalled      = "ticket:called"
	EventTicketServing     = "ticket:serving"
	EventTicketCompleted   = "ticket:completed"
	EventTicketNoShow      = "ticket:no_show"
	EventTicketTransferred = "ticket:transferred"
	EventTicketPrioritized = "ticket:prioritized"
	EventTicketPosition    = "ticket:position_updated"
	EventQueueUpdated      = "queue:updated"
	EventQueuePaused       = "queue:paused"
	EventQueueResumed      = "queue:resumed"
	EventQueueReset        = "queue:reset"
	EventQueueAutoClosed   = "queue:auto_closed"
	EventQueueAutoOpened   = "queue:auto_opened"
	EventCounterUpdated    = "counter:updated"
	EventAlertsUpdated     = "alerts:updated"
)

// Event is the wire format pushed to subscribers. Seq is per branch and
// assigned at publish time; subscribers use it to detect gaps.
type Event struct {
	Type      string    `json:"type"`
	BranchID  string    `json:"branch_id"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	Payload   any       `json:"payload,omitempty"`
}

func BranchRoom(branchID string) string  { return "branch:" + branchID }
func DisplayRoom(branchID string) string { return "display:" + branchID }
func TicketRoom(ticketID string) string  { return "ticket:" + ticketID }

// Client is one realtime subscriber. Send is buffered; when the client
// cannot keep up, events are dropped for that client only.
type Client struct {
	ID    string
	Send  chan Event
	rooms map[string]bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     map[string]uint64

	// sendBuffer is the per-client channel capacity.
	sendBuffer int
}

func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		clients:    make(map[string]*Client),
		seq:        make(map[string]uint64),
		sendBuffer: sendBuffer,
	}
}

// Register adds a subscriber with no room memberships yet.
func (h *Hub) Register(clientID string) *Client {
	client := &Client{
		ID:    clientID,
		Send:  make(chan Event, h.sendBuffer),
		rooms: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()
	return client
}

// Unregister drops the subscriber and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()
	if ok {
		close(client.Send)
	}
}

func (h *Hub) Subscribe(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		client.rooms[room] = true
	}
}

func (h *Hub) Unsubscribe(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		delete(client.rooms, room)
	}
}

// Publish stamps the event with the branch's next sequence number and fans it
// out to every client in any of the given rooms. Callers publish while
// holding their branch lock, so sequence order matches commit order. Sends
// are non-blocking, so the fan-out happens under the hub lock; that also
// keeps Unregister from closing a channel mid-send.
func (h *Hub) Publish(event Event, rooms ...string) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[event.BranchID]++
	event.Seq = h.seq[event.BranchID]
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	for _, client := range h.clients {
		matched := false
		for _, room := range rooms {
			if client.rooms[room] {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		select {
		case client.Send <- event:
		default:
			log.Printf("level=warn msg=\"dropping event for slow client\" client=%s type=%s branch=%s seq=%d", client.ID, event.Type, event.BranchID, event.Seq)
		}
	}
	return event
}

// ClientCount is used by the expvar metrics endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscribeRequest is what realtime clients send over the socket to join
// rooms. Display selects the TV projection room for the branch.
type SubscribeRequest struct {
	Action   string `json:"action"`
	BranchID string `json:"branch_id,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
	Display  bool   `json:"display,omitempty"`
}

// ParseSubscribe decodes a client message and returns the rooms it targets.
// Unknown actions and empty requests return no rooms.
func ParseSubscribe(data []byte) (action string, rooms []string, err error) {
	var req SubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}
	if req.Action != "subscribe" && req.Action != "unsubscribe" {
		return req.Action, nil, nil
	}
	if req.BranchID != "" {
		if req.Display {
			rooms = append(rooms, DisplayRoom(req.BranchID))
		} else {
			rooms = append(rooms, BranchRoom(req.BranchID))
		}
	}
	if req.TicketID != "" {
		rooms = append(rooms, TicketRoom(req.TicketID))
	}
	return req.Action, rooms, nil
}
