package dispatch

import (
	"context"
	"log"

	"blesaf/dispatch-service/internal/hub"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/sequence"
	"blesaf/dispatch-service/internal/store"
)

func logReleaseFailure(counterID, ticketID string, err error) {
	log.Printf("level=error msg=\"counter release failed\" counter=%s ticket=%s err=%v", counterID, ticketID, err)
}

// StartServing is the teller's explicit acknowledgment. The serving clock was
// already started at call time; this only flips the status label.
func (e *Engine) StartServing(ctx context.Context, ticketID, tellerID string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	lock := e.branchLock(ticket.BranchID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err = e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionServing, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}

	now := e.now()
	from := ticket.Status
	ticket.Status = models.StatusServing
	entry := store.HistoryEntry{Action: store.ActionServing, ActorID: tellerID, CreatedAt: now}
	ticket, err = e.store.UpdateTicket(ctx, ticket, from, entry)
	if err != nil {
		return models.Ticket{}, err
	}

	e.publish(hub.Event{
		Type:     hub.EventTicketServing,
		BranchID: ticket.BranchID,
		TicketID: ticket.TicketID,
		Payload:  map[string]any{"ticket_number": ticket.TicketNumber},
	}, hub.BranchRoom(ticket.BranchID), hub.DisplayRoom(ticket.BranchID), hub.TicketRoom(ticket.TicketID))
	return ticket, nil
}

// CompleteTicket closes out an active ticket and frees its counter.
func (e *Engine) CompleteTicket(ctx context.Context, ticketID, tellerID string) (models.Ticket, error) {
	return e.finishTicket(ctx, ticketID, tellerID, store.ActionCompleted, models.StatusCompleted, hub.EventTicketCompleted)
}

// MarkNoShow records that the called customer never appeared and frees the
// counter for the next call.
func (e *Engine) MarkNoShow(ctx context.Context, ticketID, tellerID string) (models.Ticket, error) {
	return e.finishTicket(ctx, ticketID, tellerID, store.ActionNoShow, models.StatusNoShow, hub.EventTicketNoShow)
}

func (e *Engine) finishTicket(ctx context.Context, ticketID, tellerID, action, toStatus, eventType string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	lock := e.branchLock(ticket.BranchID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err = e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(action, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}
	// Only the teller who called the ticket may resolve it.
	if ticket.ServedByUserID != nil && *ticket.ServedByUserID != tellerID {
		return models.Ticket{}, store.ErrNotTicketOwner
	}

	now := e.now()
	from := ticket.Status
	counterID := ticket.CounterID
	ticket.Status = toStatus
	payload := map[string]any{"ticket_number": ticket.TicketNumber}
	entry := store.HistoryEntry{Action: action, ActorID: tellerID, CreatedAt: now}
	if toStatus == models.StatusCompleted {
		ticket.CompletedAt = &now
		if ticket.ServingStartedAt != nil {
			serviceTimeMins := int(now.Sub(*ticket.ServingStartedAt).Minutes())
			payload["service_time_mins"] = serviceTimeMins
			entry.Metadata = mustJSON(map[string]any{"service_time_mins": serviceTimeMins})
		}
	}
	ticket, err = e.store.UpdateTicket(ctx, ticket, from, entry)
	if err != nil {
		return models.Ticket{}, err
	}

	if counterID != nil {
		if _, err := e.registry.Release(*counterID, ticket.TicketID); err != nil {
			logReleaseFailure(*counterID, ticket.TicketID, err)
		} else {
			e.publishCounterUpdated(ticket.BranchID, *counterID)
		}
	}

	e.publish(hub.Event{
		Type:     eventType,
		BranchID: ticket.BranchID,
		TicketID: ticket.TicketID,
		Payload:  payload,
	}, hub.BranchRoom(ticket.BranchID), hub.DisplayRoom(ticket.BranchID), hub.TicketRoom(ticket.TicketID))
	e.publishQueueUpdated(ctx, ticket.BranchID)
	return ticket, nil
}

// TransferTicket sends an active ticket back to waiting under another
// service. The original check-in time is preserved so the customer does not
// lose their place, but the printed number changes to the target prefix.
func (e *Engine) TransferTicket(ctx context.Context, ticketID, targetServiceID, actorID string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	target, err := e.store.GetService(ctx, targetServiceID)
	if err != nil {
		return models.Ticket{}, err
	}
	if target.BranchID != ticket.BranchID || !target.Active {
		return models.Ticket{}, store.ErrServiceNotFound
	}

	lock := e.branchLock(ticket.BranchID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err = e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionTransferred, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}

	now := e.now()
	n, err := e.numbers.Next(ctx, ticket.BranchID, target.Prefix, now)
	if err != nil {
		return models.Ticket{}, err
	}

	from := ticket.Status
	counterID := ticket.CounterID
	oldNumber := ticket.TicketNumber
	ticket.Status = models.StatusWaiting
	ticket.ServiceID = targetServiceID
	ticket.TicketNumber = sequence.FormatNumber(target.Prefix, n)
	ticket.CounterID = nil
	ticket.ServedByUserID = nil
	ticket.CalledAt = nil
	ticket.ServingStartedAt = nil
	entry := store.HistoryEntry{
		Action:    store.ActionTransferred,
		ActorID:   actorID,
		CreatedAt: now,
		Metadata: mustJSON(map[string]any{
			"from_number": oldNumber,
			"to_number":   ticket.TicketNumber,
			"to_service":  targetServiceID,
		}),
	}
	ticket, err = e.store.UpdateTicket(ctx, ticket, from, entry)
	if err != nil {
		return models.Ticket{}, err
	}

	if counterID != nil {
		if _, err := e.registry.Release(*counterID, ticket.TicketID); err != nil {
			logReleaseFailure(*counterID, ticket.TicketID, err)
		} else {
			e.publishCounterUpdated(ticket.BranchID, *counterID)
		}
	}

	e.publish(hub.Event{
		Type:     hub.EventTicketTransferred,
		BranchID: ticket.BranchID,
		TicketID: ticket.TicketID,
		Payload: map[string]any{
			"ticket_number": ticket.TicketNumber,
			"from_number":   oldNumber,
			"service_name":  target.Name,
		},
	}, hub.BranchRoom(ticket.BranchID), hub.DisplayRoom(ticket.BranchID), hub.TicketRoom(ticket.TicketID))
	e.publishQueueUpdated(ctx, ticket.BranchID)
	e.publishPositions(ctx, ticket.BranchID)
	return ticket, nil
}

// BumpPriority promotes a waiting ticket to vip. Ranking places vip tickets
// ahead of every normal one while keeping vip arrivals in FIFO order.
func (e *Engine) BumpPriority(ctx context.Context, ticketID, reason, actorID string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	lock := e.branchLock(ticket.BranchID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err = e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionPriorityBump, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}
	if ticket.Priority == models.PriorityVIP {
		return models.Ticket{}, store.ErrAlreadyVIP
	}

	now := e.now()
	ticket.Priority = models.PriorityVIP
	ticket.PriorityReason = reason
	ticket.PrioritizedBy = actorID
	ticket.PrioritizedAt = &now
	entry := store.HistoryEntry{
		Action:    store.ActionPriorityBump,
		ActorID:   actorID,
		CreatedAt: now,
		Metadata:  mustJSON(map[string]any{"reason": reason}),
	}
	ticket, err = e.store.UpdateTicket(ctx, ticket, models.StatusWaiting, entry)
	if err != nil {
		return models.Ticket{}, err
	}

	e.publish(hub.Event{
		Type:     hub.EventTicketPrioritized,
		BranchID: ticket.BranchID,
		TicketID: ticket.TicketID,
		Payload:  map[string]any{"ticket_number": ticket.TicketNumber, "reason": reason},
	}, hub.BranchRoom(ticket.BranchID), hub.TicketRoom(ticket.TicketID))
	e.publishQueueUpdated(ctx, ticket.BranchID)
	e.publishPositions(ctx, ticket.BranchID)
	return ticket, nil
}

// CancelTicket withdraws a waiting ticket at the customer's request.
func (e *Engine) CancelTicket(ctx context.Context, ticketID, actorID string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	lock := e.branchLock(ticket.BranchID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err = e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionCancelled, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}

	now := e.now()
	ticket.Status = models.StatusCancelled
	entry := store.HistoryEntry{Action: store.ActionCancelled, ActorID: actorID, CreatedAt: now}
	ticket, err = e.store.UpdateTicket(ctx, ticket, models.StatusWaiting, entry)
	if err != nil {
		return models.Ticket{}, err
	}

	e.publishQueueUpdated(ctx, ticket.BranchID)
	e.publishPositions(ctx, ticket.BranchID)
	return ticket, nil
}

// TicketHistory returns the ticket's audit chain.
func (e *Engine) TicketHistory(ctx context.Context, ticketID string) ([]store.HistoryEntry, error) {
	if _, err := e.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.store.ListHistory(ctx, ticketID)
}
