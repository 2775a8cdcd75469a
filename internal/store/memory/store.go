// Package memory holds the in-process TicketStore used in development and
// tests. All mutations happen under one mutex, which gives the same
// atomicity guarantees the postgres store gets from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	tickets  map[string]models.Ticket
	history  map[string][]store.HistoryEntry
	services map[string]models.Service
}

func NewStore() *Store {
	return &Store{
		tickets:  make(map[string]models.Ticket),
		history:  make(map[string][]store.HistoryEntry),
		services: make(map[string]models.Service),
	}
}

// SeedService registers a service category. Service CRUD belongs to the admin
// collaborator; the dispatch core only reads them.
func (s *Store) SeedService(service models.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[service.ServiceID] = service
}

func (s *Store) CreateTicket(ctx context.Context, ticket models.Ticket, entry store.HistoryEntry) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket.Version = 1
	s.tickets[ticket.TicketID] = ticket
	s.appendHistoryLocked(ticket.TicketID, entry)
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) ListByStatus(ctx context.Context, branchID string, statuses ...string) ([]models.Ticket, error) {
	wanted := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tickets []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.BranchID == branchID && wanted[ticket.Status] {
			tickets = append(tickets, ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
		}
		return tickets[i].TicketID < tickets[j].TicketID
	})
	return tickets, nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticket models.Ticket, expectStatus string, entry store.HistoryEntry) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tickets[ticket.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if current.Status != expectStatus || current.Version != ticket.Version {
		return models.Ticket{}, store.ErrConcurrentModification
	}
	ticket.Version = current.Version + 1
	s.tickets[ticket.TicketID] = ticket
	s.appendHistoryLocked(ticket.TicketID, entry)
	return ticket, nil
}

func (s *Store) ListHistory(ctx context.Context, ticketID string) ([]store.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[ticketID]
	out := make([]store.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	service, ok := s.services[serviceID]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	return service, nil
}

func (s *Store) ListServices(ctx context.Context, branchID string) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var services []models.Service
	for _, service := range s.services {
		if service.BranchID == branchID && service.Active {
			services = append(services, service)
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *Store) CompletedSince(ctx context.Context, branchID string, since time.Time) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tickets []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.BranchID != branchID || ticket.Status != models.StatusCompleted {
			continue
		}
		if ticket.CompletedAt == nil || ticket.CompletedAt.Before(since) {
			continue
		}
		tickets = append(tickets, ticket)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].CompletedAt.Before(*tickets[j].CompletedAt) })
	return tickets, nil
}

func (s *Store) appendHistoryLocked(ticketID string, entry store.HistoryEntry) {
	entries := s.history[ticketID]
	prevHash := ""
	if len(entries) > 0 {
		prevHash = entries[len(entries)-1].Hash
	}
	entry.TicketID = ticketID
	entry.Seq = len(entries) + 1
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.PrevHash = prevHash
	entry.Hash = store.ComputeHistoryHash(prevHash, ticketID, entry.Action, entry.Metadata, entry.CreatedAt, entry.Seq)
	s.history[ticketID] = append(entries, entry)
}
