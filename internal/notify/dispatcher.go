// Package notify delivers customer notifications off the dispatch hot path.
// Enqueue never blocks; a full buffer drops the message with a log line,
// since a missed SMS is preferable to a stalled call-next.
package notify

import (
	"context"
	"log"
	"strconv"
	"strings"
)

const (
	TypeConfirmation = "confirmation"
	TypeAlmostTurn   = "almost_turn"
	TypeYourTurn     = "your_turn"
)

var templates = map[string]string{
	TypeConfirmation: "Your ticket {ticket_number} is confirmed. Position {position}, about {estimate} min wait.",
	TypeAlmostTurn:   "Almost your turn! Ticket {ticket_number} is position {position} in the queue.",
	TypeYourTurn:     "It's your turn! Ticket {ticket_number}, please go to counter {counter}.",
}

type Message struct {
	Type          string
	Channel       string
	Phone         string
	TicketNumber  string
	BranchID      string
	CounterNumber int
	Position      int
	EstimateMins  int
}

// Sender delivers one rendered message. Production wires an SMS or push
// gateway; development uses LogSender.
type Sender interface {
	Send(ctx context.Context, channel, recipient, body string) error
}

type LogSender struct{}

func (LogSender) Send(ctx context.Context, channel, recipient, body string) error {
	log.Printf("level=info msg=\"notification sent\" channel=%s to=%s body=%q", channel, recipient, body)
	return nil
}

type Dispatcher struct {
	queue  chan Message
	sender Sender
}

func NewDispatcher(sender Sender, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		queue:  make(chan Message, buffer),
		sender: sender,
	}
}

// Enqueue queues a message for delivery and reports whether it was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	if msg.Phone == "" {
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		log.Printf("level=warn msg=\"notification buffer full, dropping\" type=%s ticket=%s", msg.Type, msg.TicketNumber)
		return false
	}
}

// Run drains the queue until ctx is cancelled. Send failures are logged and
// the message is abandoned; there is no retry.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			body := Render(msg)
			if err := d.sender.Send(ctx, msg.Channel, msg.Phone, body); err != nil {
				log.Printf("level=error msg=\"notification send failed\" type=%s ticket=%s err=%v", msg.Type, msg.TicketNumber, err)
			}
		}
	}
}

// Render fills the message template. Unknown types render the raw ticket
// number so the customer still gets something useful.
func Render(msg Message) string {
	tmpl, ok := templates[msg.Type]
	if !ok {
		return "Update for ticket " + msg.TicketNumber
	}
	r := strings.NewReplacer(
		"{ticket_number}", msg.TicketNumber,
		"{position}", strconv.Itoa(msg.Position),
		"{estimate}", strconv.Itoa(msg.EstimateMins),
		"{counter}", strconv.Itoa(msg.CounterNumber),
	)
	return r.Replace(tmpl)
}
