package dispatch

import (
	"context"
	"fmt"
	"time"

	"blesaf/dispatch-service/internal/alerts"
	"blesaf/dispatch-service/internal/hub"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/store"
)

// PauseQueue stops new check-ins for the branch. Tickets already in the
// queue remain callable.
func (e *Engine) PauseQueue(ctx context.Context, branchID, actorID string) {
	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	now := e.now()
	e.registry.SetQueueStatus(branchID, models.QueuePaused, actorID, now)
	e.publish(hub.Event{
		Type:     hub.EventQueuePaused,
		BranchID: branchID,
		Payload:  map[string]any{"paused_by": actorID, "paused_at": now},
	}, hub.BranchRoom(branchID), hub.DisplayRoom(branchID))
}

// ResumeQueue reopens check-ins after a pause.
func (e *Engine) ResumeQueue(ctx context.Context, branchID, actorID string) {
	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	e.registry.SetQueueStatus(branchID, models.QueueOpen, actorID, e.now())
	e.publish(hub.Event{
		Type:     hub.EventQueueResumed,
		BranchID: branchID,
		Payload:  map[string]any{"resumed_by": actorID},
	}, hub.BranchRoom(branchID), hub.DisplayRoom(branchID))
}

// AutoOpenQueue is driven by the opening-hours schedule.
func (e *Engine) AutoOpenQueue(ctx context.Context, branchID string) {
	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	e.registry.SetQueueStatus(branchID, models.QueueOpen, "", e.now())
	e.publish(hub.Event{
		Type:     hub.EventQueueAutoOpened,
		BranchID: branchID,
	}, hub.BranchRoom(branchID), hub.DisplayRoom(branchID))
}

// AutoCloseQueue closes the branch at end of day and cancels every ticket
// still waiting or called. Tickets mid-service are left for the teller to
// finish.
func (e *Engine) AutoCloseQueue(ctx context.Context, branchID string) (int, error) {
	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	now := e.now()
	e.registry.SetQueueStatus(branchID, models.QueueClosed, "", now)

	leftover, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting, models.StatusCalled)
	if err != nil {
		return 0, fmt.Errorf("list leftover tickets: %w", err)
	}
	cancelled := 0
	for _, ticket := range leftover {
		from := ticket.Status
		counterID := ticket.CounterID
		ticket.Status = models.StatusCancelled
		entry := store.HistoryEntry{Action: store.ActionAutoCancelled, CreatedAt: now}
		if _, err := e.store.UpdateTicket(ctx, ticket, from, entry); err != nil {
			// Somebody resolved it between the list and the write; skip.
			continue
		}
		if counterID != nil {
			if _, err := e.registry.Release(*counterID, ticket.TicketID); err != nil {
				logReleaseFailure(*counterID, ticket.TicketID, err)
			}
		}
		cancelled++
	}

	e.publish(hub.Event{
		Type:     hub.EventQueueAutoClosed,
		BranchID: branchID,
		Payload:  map[string]any{"cancelled": cancelled},
	}, hub.BranchRoom(branchID), hub.DisplayRoom(branchID))
	return cancelled, nil
}

// SetCounterStatus opens or closes a counter.
func (e *Engine) SetCounterStatus(ctx context.Context, branchID, counterID, status string) (models.Counter, error) {
	if status != models.CounterOpen && status != models.CounterClosed {
		return models.Counter{}, fmt.Errorf("unsupported counter status %q", status)
	}
	counter, err := e.registry.GetCounter(counterID)
	if err != nil {
		return models.Counter{}, err
	}
	if counter.BranchID != branchID {
		return models.Counter{}, store.ErrCounterNotFound
	}

	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	counter, err = e.registry.SetStatus(counterID, status)
	if err != nil {
		return models.Counter{}, err
	}
	e.publishCounterUpdated(branchID, counterID)
	e.publishQueueUpdated(ctx, branchID)
	return counter, nil
}

// StartBreak puts a counter on break.
func (e *Engine) StartBreak(ctx context.Context, branchID, counterID, reason, actorID string, durationMins int) (models.Break, error) {
	counter, err := e.registry.GetCounter(counterID)
	if err != nil {
		return models.Break{}, err
	}
	if counter.BranchID != branchID {
		return models.Break{}, store.ErrCounterNotFound
	}

	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	brk, err := e.registry.StartBreak(counterID, reason, actorID, durationMins, e.now())
	if err != nil {
		return models.Break{}, err
	}
	e.publishCounterUpdated(branchID, counterID)
	e.publishQueueUpdated(ctx, branchID)
	return brk, nil
}

// EndBreak reopens a counter after its break.
func (e *Engine) EndBreak(ctx context.Context, branchID, counterID string) (models.Break, error) {
	counter, err := e.registry.GetCounter(counterID)
	if err != nil {
		return models.Break{}, err
	}
	if counter.BranchID != branchID {
		return models.Break{}, store.ErrCounterNotFound
	}

	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	brk, err := e.registry.EndBreak(counterID)
	if err != nil {
		return models.Break{}, err
	}
	e.publishCounterUpdated(branchID, counterID)
	e.publishQueueUpdated(ctx, branchID)
	return brk, nil
}

// slowTellerWindow bounds the completed tickets feeding the per-teller
// service-time averages.
const slowTellerWindow = time.Hour

// EvaluateAlerts runs the SLA rules over the branch's current state and
// broadcasts the result to staff. Evaluation problems degrade to no alerts
// and never disturb dispatching.
func (e *Engine) EvaluateAlerts(ctx context.Context, branchID string) []alerts.Alert {
	waiting, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting)
	if err != nil {
		return nil
	}
	completed, err := e.store.CompletedSince(ctx, branchID, e.now().Add(-slowTellerWindow))
	if err != nil {
		return nil
	}
	input := alerts.Input{
		BranchID:  branchID,
		Waiting:   waiting,
		Completed: completed,
		Breaks:    e.registry.ActiveBreaks(branchID),
	}
	result := alerts.Evaluate(input, e.thresholds, e.now())
	e.publish(hub.Event{
		Type:     hub.EventAlertsUpdated,
		BranchID: branchID,
		Payload:  map[string]any{"alerts": result},
	}, hub.BranchRoom(branchID))
	return result
}
