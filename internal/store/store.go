package store

import (
	"context"
	"encoding/json"
	"time"

	"blesaf/dispatch-service/internal/models"
)

// HistoryEntry is one append-only audit record for a ticket. Seq, PrevHash
// and Hash are assigned by the store on append; callers fill the rest.
type HistoryEntry struct {
	TicketID  string          `json:"ticket_id"`
	Seq       int             `json:"seq"`
	Action    string          `json:"action"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// TicketStore is the durable record of tickets, services, and ticket history.
// UpdateTicket is the single mutation point for existing tickets and carries
// a compare-and-swap guard: the write succeeds only if the stored ticket
// still has expectStatus and the version the caller read. The ticket write
// and the history append are one atomic unit.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket models.Ticket, entry HistoryEntry) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ListByStatus(ctx context.Context, branchID string, statuses ...string) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket models.Ticket, expectStatus string, entry HistoryEntry) (models.Ticket, error)
	ListHistory(ctx context.Context, ticketID string) ([]HistoryEntry, error)
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	ListServices(ctx context.Context, branchID string) ([]models.Service, error)
	CompletedSince(ctx context.Context, branchID string, since time.Time) ([]models.Ticket, error)
}
