// Package dispatch serializes ticket lifecycle mutations per branch and is
// the only writer of ticket state. Reads (snapshots, positions) bypass the
// branch lock and see committed store state.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"blesaf/dispatch-service/internal/alerts"
	"blesaf/dispatch-service/internal/counters"
	"blesaf/dispatch-service/internal/hub"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/notify"
	"blesaf/dispatch-service/internal/queue"
	"blesaf/dispatch-service/internal/sequence"
	"blesaf/dispatch-service/internal/store"
)

// notifyAtPosition is the queue position at which the "almost your turn"
// notification fires.
const notifyAtPosition = 2

type Engine struct {
	store      store.TicketStore
	registry   *counters.Registry
	numbers    sequence.Allocator
	hub        *hub.Hub
	notifier   *notify.Dispatcher
	thresholds alerts.Thresholds
	now        func() time.Time

	mu       sync.Mutex
	branches map[string]*sync.Mutex
}

func NewEngine(ts store.TicketStore, registry *counters.Registry, numbers sequence.Allocator, h *hub.Hub, notifier *notify.Dispatcher, thresholds alerts.Thresholds) *Engine {
	return &Engine{
		store:      ts,
		registry:   registry,
		numbers:    numbers,
		hub:        h,
		notifier:   notifier,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
		branches:   make(map[string]*sync.Mutex),
	}
}

// branchLock returns the mutex serializing mutations for one branch,
// creating it on first use.
func (e *Engine) branchLock(branchID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.branches[branchID]
	if !ok {
		lock = &sync.Mutex{}
		e.branches[branchID] = lock
	}
	return lock
}

func mustJSON(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

type CheckinRequest struct {
	BranchID      string
	ServiceID     string
	Phone         string
	NotifyChannel string
	CheckinMethod string
}

type CheckinResult struct {
	Ticket       models.Ticket `json:"ticket"`
	Position     int           `json:"position"`
	EstimateMins int           `json:"estimate_mins"`
}

// Checkin creates a waiting ticket for the service, allocates its printed
// number, and reports the caller's initial position and wait estimate.
func (e *Engine) Checkin(ctx context.Context, req CheckinRequest) (CheckinResult, error) {
	service, err := e.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return CheckinResult{}, err
	}
	if service.BranchID != req.BranchID || !service.Active {
		return CheckinResult{}, store.ErrServiceNotFound
	}

	lock := e.branchLock(req.BranchID)
	lock.Lock()
	defer lock.Unlock()

	// Queue status is read inside the critical section so a check-in racing
	// a pause or close cannot slip into the queue.
	switch status, _, _ := e.registry.QueueStatus(req.BranchID); status {
	case models.QueuePaused:
		return CheckinResult{}, store.ErrQueuePaused
	case models.QueueClosed:
		return CheckinResult{}, store.ErrQueueClosed
	}

	now := e.now()
	n, err := e.numbers.Next(ctx, req.BranchID, service.Prefix, now)
	if err != nil {
		return CheckinResult{}, fmt.Errorf("allocate ticket number: %w", err)
	}

	method := req.CheckinMethod
	if method == "" {
		method = models.CheckinKiosk
	}
	ticket := models.Ticket{
		TicketID:      uuid.NewString(),
		TicketNumber:  sequence.FormatNumber(service.Prefix, n),
		BranchID:      req.BranchID,
		ServiceID:     req.ServiceID,
		Status:        models.StatusWaiting,
		Priority:      models.PriorityNormal,
		Phone:         req.Phone,
		NotifyChannel: req.NotifyChannel,
		CheckinMethod: method,
		CreatedAt:     now,
	}
	entry := store.HistoryEntry{
		Action:    store.ActionCreated,
		ActorID:   method,
		CreatedAt: now,
		Metadata:  mustJSON(map[string]any{"ticket_number": ticket.TicketNumber, "service_id": req.ServiceID}),
	}
	ticket, err = e.store.CreateTicket(ctx, ticket, entry)
	if err != nil {
		return CheckinResult{}, err
	}

	position, estimate := e.positionAndEstimate(ctx, ticket, service)

	e.publish(hub.Event{
		Type:     hub.EventTicketCreated,
		BranchID: req.BranchID,
		TicketID: ticket.TicketID,
		Payload: map[string]any{
			"ticket_number": ticket.TicketNumber,
			"service_name":  service.Name,
			"position":      position,
			"estimate_mins": estimate,
		},
	}, hub.BranchRoom(req.BranchID), hub.DisplayRoom(req.BranchID), hub.TicketRoom(ticket.TicketID))
	e.publishQueueUpdated(ctx, req.BranchID)

	if e.notifier != nil {
		e.notifier.Enqueue(notify.Message{
			Type:         notify.TypeConfirmation,
			Channel:      ticket.NotifyChannel,
			Phone:        ticket.Phone,
			TicketNumber: ticket.TicketNumber,
			BranchID:     req.BranchID,
			Position:     position,
			EstimateMins: estimate,
		})
	}

	return CheckinResult{Ticket: ticket, Position: position, EstimateMins: estimate}, nil
}

// CallNext claims the highest-ranked waiting ticket the counter can serve and
// moves it to called. The teller is considered serving immediately; the
// explicit serving acknowledgment only flips the status label.
func (e *Engine) CallNext(ctx context.Context, branchID, counterID, tellerID string) (models.Ticket, error) {
	counter, err := e.registry.GetCounter(counterID)
	if err != nil {
		return models.Ticket{}, err
	}
	if counter.BranchID != branchID {
		return models.Ticket{}, store.ErrCounterNotFound
	}

	lock := e.branchLock(branchID)
	lock.Lock()
	defer lock.Unlock()

	// CAS failures mean another writer slipped in outside the branch lock
	// (direct store access, another instance). One retry against a fresh
	// snapshot, then surface.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ticket, err := e.callNextOnce(ctx, branchID, counter, tellerID)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, store.ErrConcurrentModification) {
			return models.Ticket{}, err
		}
		lastErr = err
	}
	return models.Ticket{}, lastErr
}

func (e *Engine) callNextOnce(ctx context.Context, branchID string, counter models.Counter, tellerID string) (models.Ticket, error) {
	waiting, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting)
	if err != nil {
		return models.Ticket{}, err
	}
	var next *models.Ticket
	for _, candidate := range queue.Rank(waiting) {
		if counters.AllowsService(counter, candidate.ServiceID) {
			c := candidate
			next = &c
			break
		}
	}
	if next == nil {
		return models.Ticket{}, store.ErrNoEligibleTicket
	}
	if !store.ValidTransition(store.ActionCalled, next.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}

	if _, err := e.registry.Claim(counter.CounterID, next.TicketID); err != nil {
		return models.Ticket{}, err
	}

	now := e.now()
	updated := *next
	updated.Status = models.StatusCalled
	updated.CalledAt = &now
	updated.ServingStartedAt = &now
	updated.CounterID = &counter.CounterID
	updated.ServedByUserID = &tellerID
	entry := store.HistoryEntry{
		Action:    store.ActionCalled,
		ActorID:   tellerID,
		CreatedAt: now,
		Metadata:  mustJSON(map[string]any{"counter_id": counter.CounterID}),
	}
	updated, err = e.store.UpdateTicket(ctx, updated, models.StatusWaiting, entry)
	if err != nil {
		if _, relErr := e.registry.Release(counter.CounterID, next.TicketID); relErr != nil {
			logReleaseFailure(counter.CounterID, next.TicketID, relErr)
		}
		return models.Ticket{}, err
	}

	payload := map[string]any{
		"ticket_number":  updated.TicketNumber,
		"counter_id":     counter.CounterID,
		"counter_number": counter.Number,
	}
	rooms := []string{hub.BranchRoom(branchID), hub.DisplayRoom(branchID), hub.TicketRoom(updated.TicketID)}
	e.publish(hub.Event{Type: hub.EventTicketCalled, BranchID: branchID, TicketID: updated.TicketID, Payload: payload}, rooms...)
	e.publish(hub.Event{Type: hub.EventTicketServing, BranchID: branchID, TicketID: updated.TicketID, Payload: payload}, rooms...)
	e.publishCounterUpdated(branchID, counter.CounterID)
	e.publishQueueUpdated(ctx, branchID)
	e.publishPositions(ctx, branchID)

	if e.notifier != nil {
		e.notifier.Enqueue(notify.Message{
			Type:          notify.TypeYourTurn,
			Channel:       updated.NotifyChannel,
			Phone:         updated.Phone,
			TicketNumber:  updated.TicketNumber,
			BranchID:      branchID,
			CounterNumber: counter.Number,
		})
		e.notifyAlmostTurn(ctx, branchID)
	}

	return updated, nil
}

// notifyAlmostTurn pings whoever just reached the notify position.
func (e *Engine) notifyAlmostTurn(ctx context.Context, branchID string) {
	waiting, err := e.store.ListByStatus(ctx, branchID, models.StatusWaiting)
	if err != nil {
		return
	}
	ranked := queue.Rank(waiting)
	if len(ranked) < notifyAtPosition {
		return
	}
	ticket := ranked[notifyAtPosition-1]
	e.notifier.Enqueue(notify.Message{
		Type:         notify.TypeAlmostTurn,
		Channel:      ticket.NotifyChannel,
		Phone:        ticket.Phone,
		TicketNumber: ticket.TicketNumber,
		BranchID:     branchID,
		Position:     notifyAtPosition,
	})
}

func (e *Engine) positionAndEstimate(ctx context.Context, ticket models.Ticket, service models.Service) (int, int) {
	waiting, err := e.store.ListByStatus(ctx, ticket.BranchID, models.StatusWaiting)
	if err != nil {
		return 0, 0
	}
	position := queue.Position(waiting, ticket.TicketID)
	open := e.registry.OpenCount(ticket.BranchID, ticket.ServiceID)
	return position, queue.EstimateWait(position, service.AvgServiceMins, open)
}

func (e *Engine) publish(event hub.Event, rooms ...string) {
	if e.hub != nil {
		e.hub.Publish(event, rooms...)
	}
}
