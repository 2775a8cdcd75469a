// Package postgres is the durable TicketStore. Every mutation runs in one
// transaction covering the ticket row and its history append, so readers
// never observe a transition without its audit record.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const ticketColumns = `ticket_id, ticket_number, branch_id, service_id, status, priority,
	phone, notify_channel, checkin_method, counter_id, served_by_user_id,
	created_at, called_at, serving_started_at, completed_at,
	priority_reason, prioritized_by, prioritized_at, version`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(
		&t.TicketID, &t.TicketNumber, &t.BranchID, &t.ServiceID, &t.Status, &t.Priority,
		&t.Phone, &t.NotifyChannel, &t.CheckinMethod, &t.CounterID, &t.ServedByUserID,
		&t.CreatedAt, &t.CalledAt, &t.ServingStartedAt, &t.CompletedAt,
		&t.PriorityReason, &t.PrioritizedBy, &t.PrioritizedAt, &t.Version,
	)
	return t, err
}

func (s *Store) CreateTicket(ctx context.Context, ticket models.Ticket, entry store.HistoryEntry) (models.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	ticket.Version = 1
	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		ticket.TicketID, ticket.TicketNumber, ticket.BranchID, ticket.ServiceID, ticket.Status, ticket.Priority,
		ticket.Phone, ticket.NotifyChannel, ticket.CheckinMethod, ticket.CounterID, ticket.ServedByUserID,
		ticket.CreatedAt, ticket.CalledAt, ticket.ServingStartedAt, ticket.CompletedAt,
		ticket.PriorityReason, ticket.PrioritizedBy, ticket.PrioritizedAt, ticket.Version,
	)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	if err := appendHistory(ctx, tx, ticket.TicketID, entry); err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, fmt.Errorf("commit: %w", err)
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (s *Store) ListByStatus(ctx context.Context, branchID string, statuses ...string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE branch_id = $1 AND status = ANY($2)
		ORDER BY created_at, ticket_id`, branchID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func (s *Store) UpdateTicket(ctx context.Context, ticket models.Ticket, expectStatus string, entry store.HistoryEntry) (models.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE tickets SET
			ticket_number = $1, service_id = $2, status = $3, priority = $4,
			counter_id = $5, served_by_user_id = $6,
			called_at = $7, serving_started_at = $8, completed_at = $9,
			priority_reason = $10, prioritized_by = $11, prioritized_at = $12,
			version = version + 1
		WHERE ticket_id = $13 AND status = $14 AND version = $15
		RETURNING `+ticketColumns,
		ticket.TicketNumber, ticket.ServiceID, ticket.Status, ticket.Priority,
		ticket.CounterID, ticket.ServedByUserID,
		ticket.CalledAt, ticket.ServingStartedAt, ticket.CompletedAt,
		ticket.PriorityReason, ticket.PrioritizedBy, ticket.PrioritizedAt,
		ticket.TicketID, expectStatus, ticket.Version,
	)
	updated, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing ticket from a lost race.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id = $1)`, ticket.TicketID).Scan(&exists); err != nil {
			return models.Ticket{}, fmt.Errorf("check ticket: %w", err)
		}
		if !exists {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, store.ErrConcurrentModification
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("update ticket: %w", err)
	}
	if err := appendHistory(ctx, tx, ticket.TicketID, entry); err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// appendHistory links the entry to the chain head. The chain-head read locks
// the latest row so concurrent appends to one ticket serialize.
func appendHistory(ctx context.Context, tx pgx.Tx, ticketID string, entry store.HistoryEntry) error {
	var prevSeq int
	var prevHash string
	err := tx.QueryRow(ctx, `
		SELECT seq, hash FROM ticket_history
		WHERE ticket_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE`, ticketID).Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read chain head: %w", err)
	}

	entry.TicketID = ticketID
	entry.Seq = prevSeq + 1
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.PrevHash = prevHash
	entry.Hash = store.ComputeHistoryHash(prevHash, ticketID, entry.Action, entry.Metadata, entry.CreatedAt, entry.Seq)

	metadata := entry.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_history (ticket_id, seq, action, actor_id, metadata, created_at, prev_hash, hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.TicketID, entry.Seq, entry.Action, entry.ActorID, metadata, entry.CreatedAt, entry.PrevHash, entry.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, ticketID string) ([]store.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, seq, action, actor_id, metadata, created_at, prev_hash, hash
		FROM ticket_history WHERE ticket_id = $1 ORDER BY seq`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []store.HistoryEntry
	for rows.Next() {
		var entry store.HistoryEntry
		if err := rows.Scan(&entry.TicketID, &entry.Seq, &entry.Action, &entry.ActorID, &entry.Metadata, &entry.CreatedAt, &entry.PrevHash, &entry.Hash); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	var svc models.Service
	err := s.pool.QueryRow(ctx, `
		SELECT service_id, branch_id, name, prefix, avg_service_mins, active
		FROM services WHERE service_id = $1`, serviceID).
		Scan(&svc.ServiceID, &svc.BranchID, &svc.Name, &svc.Prefix, &svc.AvgServiceMins, &svc.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Service{}, store.ErrServiceNotFound
	}
	if err != nil {
		return models.Service{}, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, branchID string) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, branch_id, name, prefix, avg_service_mins, active
		FROM services WHERE branch_id = $1 AND active ORDER BY name`, branchID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.BranchID, &svc.Name, &svc.Prefix, &svc.AvgServiceMins, &svc.Active); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// LoadCounters reads the configured counter layout at boot. Live occupancy
// state belongs to the in-process registry, not the database.
func (s *Store) LoadCounters(ctx context.Context) ([]models.Counter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT counter_id, branch_id, number, label, status, assigned_user_id, assigned_user_name, service_ids
		FROM counters ORDER BY branch_id, number`)
	if err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}
	defer rows.Close()

	var out []models.Counter
	for rows.Next() {
		var c models.Counter
		if err := rows.Scan(&c.CounterID, &c.BranchID, &c.Number, &c.Label, &c.Status, &c.AssignedUserID, &c.AssignedUserName, &c.ServiceIDs); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CompletedSince(ctx context.Context, branchID string, since time.Time) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE branch_id = $1 AND status = $2 AND completed_at >= $3
		ORDER BY completed_at`, branchID, models.StatusCompleted, since)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}
