package dispatch

import (
	"context"
	"time"

	"blesaf/dispatch-service/internal/hub"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/queue"
)

// TicketDisplay is the waiting-ticket projection pushed to dashboards and
// lobby displays. Phone numbers and audit fields never leave the engine.
type TicketDisplay struct {
	TicketID     string    `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	ServiceID    string    `json:"service_id"`
	ServiceName  string    `json:"service_name,omitempty"`
	Priority     string    `json:"priority"`
	Position     int       `json:"position"`
	EstimateMins int       `json:"estimate_mins"`
	CreatedAt    time.Time `json:"created_at"`
}

type ServingDisplay struct {
	TicketID      string     `json:"ticket_id"`
	TicketNumber  string     `json:"ticket_number"`
	Status        string     `json:"status"`
	CounterID     string     `json:"counter_id,omitempty"`
	CounterNumber int        `json:"counter_number,omitempty"`
	Since         *time.Time `json:"since,omitempty"`
}

type ServiceStats struct {
	ServiceID    string `json:"service_id"`
	Name         string `json:"name"`
	Prefix       string `json:"prefix"`
	WaitingCount int    `json:"waiting_count"`
	OpenCounters int    `json:"open_counters"`
	NextCallMins int    `json:"next_call_mins"`
}

type BranchSnapshot struct {
	BranchID    string           `json:"branch_id"`
	QueueStatus string           `json:"queue_status"`
	PausedBy    string           `json:"paused_by,omitempty"`
	PausedAt    *time.Time       `json:"paused_at,omitempty"`
	Waiting     []TicketDisplay  `json:"waiting"`
	NowServing  []ServingDisplay `json:"now_serving"`
	Counters    []models.Counter `json:"counters"`
	Breaks      []models.Break   `json:"breaks,omitempty"`
	Services    []ServiceStats   `json:"services"`
}

// GetBranchSnapshot assembles the full branch view without taking the branch
// lock; it reads committed state and may trail an in-flight mutation by one
// step.
func (e *Engine) GetBranchSnapshot(ctx context.Context, branchID string) (BranchSnapshot, error) {
	status, pausedBy, pausedAt := e.registry.QueueStatus(branchID)
	snapshot := BranchSnapshot{
		BranchID:    branchID,
		QueueStatus: status,
		PausedBy:    pausedBy,
		PausedAt:    pausedAt,
		Waiting:     []TicketDisplay{},
		NowServing:  []ServingDisplay{},
	}

	services, err := e.store.ListServices(ctx, branchID)
	if err != nil {
		return BranchSnapshot{}, err
	}
	byService := make(map[string]models.Service, len(services))
	for _, svc := range services {
		byService[svc.ServiceID] = svc
	}

	waiting, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting)
	if err != nil {
		return BranchSnapshot{}, err
	}
	ranked := queue.Rank(waiting)
	waitingPerService := make(map[string]int)
	for i, ticket := range ranked {
		svc := byService[ticket.ServiceID]
		open := e.registry.OpenCount(branchID, ticket.ServiceID)
		snapshot.Waiting = append(snapshot.Waiting, TicketDisplay{
			TicketID:     ticket.TicketID,
			TicketNumber: ticket.TicketNumber,
			ServiceID:    ticket.ServiceID,
			ServiceName:  svc.Name,
			Priority:     ticket.Priority,
			Position:     i + 1,
			EstimateMins: queue.EstimateWait(i+1, svc.AvgServiceMins, open),
			CreatedAt:    ticket.CreatedAt,
		})
		waitingPerService[ticket.ServiceID]++
	}

	active, err := e.store.ListByStatus(ctx, branchID, models.StatusCalled, models.StatusServing)
	if err != nil {
		return BranchSnapshot{}, err
	}
	for _, ticket := range active {
		display := ServingDisplay{
			TicketID:     ticket.TicketID,
			TicketNumber: ticket.TicketNumber,
			Status:       ticket.Status,
			Since:        ticket.ServingStartedAt,
		}
		if ticket.CounterID != nil {
			display.CounterID = *ticket.CounterID
			if counter, err := e.registry.GetCounter(*ticket.CounterID); err == nil {
				display.CounterNumber = counter.Number
			}
		}
		snapshot.NowServing = append(snapshot.NowServing, display)
	}

	snapshot.Counters = e.registry.ListCounters(branchID)
	snapshot.Breaks = e.registry.ActiveBreaks(branchID)

	for _, svc := range services {
		open := e.registry.OpenCount(branchID, svc.ServiceID)
		snapshot.Services = append(snapshot.Services, ServiceStats{
			ServiceID:    svc.ServiceID,
			Name:         svc.Name,
			Prefix:       svc.Prefix,
			WaitingCount: waitingPerService[svc.ServiceID],
			OpenCounters: open,
			NextCallMins: queue.NextCallEstimate(open, svc.AvgServiceMins),
		})
	}

	return snapshot, nil
}

// TicketPosition is the customer-facing tracking view.
type TicketPosition struct {
	TicketID      string `json:"ticket_id"`
	TicketNumber  string `json:"ticket_number"`
	Status        string `json:"status"`
	Position      int    `json:"position,omitempty"`
	EstimateMins  int    `json:"estimate_mins,omitempty"`
	CounterNumber int    `json:"counter_number,omitempty"`
}

// GetTicketPosition reports where a ticket stands. Waiting tickets get a
// position and estimate; active tickets get their counter; terminal tickets
// get just the status.
func (e *Engine) GetTicketPosition(ctx context.Context, ticketID string) (TicketPosition, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return TicketPosition{}, err
	}
	result := TicketPosition{
		TicketID:     ticket.TicketID,
		TicketNumber: ticket.TicketNumber,
		Status:       ticket.Status,
	}

	switch {
	case ticket.Status == models.StatusWaiting:
		waiting, err := e.store.ListByStatus(ctx, ticket.BranchID, models.StatusWaiting)
		if err != nil {
			return TicketPosition{}, err
		}
		result.Position = queue.Position(waiting, ticket.TicketID)
		avg := queue.DefaultAvgServiceMins
		if svc, err := e.store.GetService(ctx, ticket.ServiceID); err == nil {
			avg = svc.AvgServiceMins
		}
		result.EstimateMins = queue.EstimateWait(result.Position, avg, e.registry.OpenCount(ticket.BranchID, ticket.ServiceID))
	case models.Active(ticket.Status) && ticket.CounterID != nil:
		if counter, err := e.registry.GetCounter(*ticket.CounterID); err == nil {
			result.CounterNumber = counter.Number
		}
	}
	return result, nil
}

func (e *Engine) publishQueueUpdated(ctx context.Context, branchID string) {
	status, _, _ := e.registry.QueueStatus(branchID)
	payload := map[string]any{"queue_status": status}
	if waiting, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting); err == nil {
		payload["waiting_count"] = len(waiting)
	}
	e.publish(hub.Event{
		Type:     hub.EventQueueUpdated,
		BranchID: branchID,
		Payload:  payload,
	}, hub.BranchRoom(branchID), hub.DisplayRoom(branchID))
}

func (e *Engine) publishCounterUpdated(branchID, counterID string) {
	counter, err := e.registry.GetCounter(counterID)
	if err != nil {
		return
	}
	e.publish(hub.Event{
		Type:     hub.EventCounterUpdated,
		BranchID: branchID,
		Payload: map[string]any{
			"counter_id":        counter.CounterID,
			"counter_number":    counter.Number,
			"status":            counter.Status,
			"current_ticket_id": counter.CurrentTicketID,
		},
	}, hub.BranchRoom(branchID), hub.DisplayRoom(branchID))
}

// publishPositions tells every waiting customer their new place after the
// queue shifts.
func (e *Engine) publishPositions(ctx context.Context, branchID string) {
	waiting, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting)
	if err != nil {
		return
	}
	for i, ticket := range queue.Rank(waiting) {
		e.publish(hub.Event{
			Type:     hub.EventTicketPosition,
			BranchID: branchID,
			TicketID: ticket.TicketID,
			Payload:  map[string]any{"position": i + 1},
		}, hub.TicketRoom(ticket.TicketID))
	}
}
