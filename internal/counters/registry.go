// Package counters tracks branch counters, their occupancy, breaks, and the
// per-branch queue state. It is the in-memory source of truth for "who can be
// called where" and is shared between the dispatch engine and the HTTP layer.
package counters

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/store"
)

type queueState struct {
	Status   string
	PausedBy string
	PausedAt *time.Time
}

type Registry struct {
	mu       sync.RWMutex
	counters map[string]models.Counter
	queues   map[string]*queueState
	breaks   map[string]models.Break
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]models.Counter),
		queues:   make(map[string]*queueState),
		breaks:   make(map[string]models.Break),
	}
}

// SeedCounter registers or replaces a counter definition.
func (r *Registry) SeedCounter(counter models.Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter.Status == "" {
		counter.Status = models.CounterClosed
	}
	r.counters[counter.CounterID] = counter
}

func (r *Registry) GetCounter(counterID string) (models.Counter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counter, ok := r.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return counter, nil
}

// ListCounters returns the branch's counters ordered by desk number.
func (r *Registry) ListCounters(branchID string) []models.Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Counter
	for _, counter := range r.counters {
		if counter.BranchID == branchID {
			out = append(out, counter)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Branches returns the distinct branch ids that have counters registered.
func (r *Registry) Branches() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, counter := range r.counters {
		if !seen[counter.BranchID] {
			seen[counter.BranchID] = true
			out = append(out, counter.BranchID)
		}
	}
	sort.Strings(out)
	return out
}

// AllowsService reports whether a counter may serve the given service. A
// counter with no explicit service list serves everything.
func AllowsService(counter models.Counter, serviceID string) bool {
	if len(counter.ServiceIDs) == 0 {
		return true
	}
	for _, id := range counter.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// OpenCount returns the number of open counters in the branch. When serviceID
// is non-empty only counters able to serve that service are counted.
func (r *Registry) OpenCount(branchID, serviceID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, counter := range r.counters {
		if counter.BranchID != branchID || counter.Status != models.CounterOpen {
			continue
		}
		if serviceID != "" && !AllowsService(counter, serviceID) {
			continue
		}
		n++
	}
	return n
}

// Claim reserves an open, idle counter for a ticket.
func (r *Registry) Claim(counterID, ticketID string) (models.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter, ok := r.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if counter.Status != models.CounterOpen {
		return models.Counter{}, store.ErrCounterClosed
	}
	if counter.CurrentTicketID != nil {
		return models.Counter{}, store.ErrCounterBusy
	}
	counter.CurrentTicketID = &ticketID
	r.counters[counterID] = counter
	return counter, nil
}

// Release frees the counter after the ticket reaches a terminal status. The
// ticket id must match what the counter holds so a stale release cannot clear
// somebody else's claim.
func (r *Registry) Release(counterID, ticketID string) (models.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter, ok := r.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if counter.CurrentTicketID == nil || *counter.CurrentTicketID != ticketID {
		return models.Counter{}, store.ErrCounterMismatch
	}
	counter.CurrentTicketID = nil
	r.counters[counterID] = counter
	return counter, nil
}

// SetStatus moves a counter between open and closed. A counter holding an
// active ticket cannot change status until the ticket is resolved.
func (r *Registry) SetStatus(counterID, status string) (models.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter, ok := r.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if counter.CurrentTicketID != nil {
		return models.Counter{}, store.ErrCounterBusy
	}
	counter.Status = status
	r.counters[counterID] = counter
	return counter, nil
}

// StartBreak puts an idle open counter on break.
func (r *Registry) StartBreak(counterID, reason, startedByID string, durationMins int, now time.Time) (models.Break, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter, ok := r.counters[counterID]
	if !ok {
		return models.Break{}, store.ErrCounterNotFound
	}
	if counter.Status == models.CounterOnBreak {
		return models.Break{}, store.ErrBreakActive
	}
	if counter.Status != models.CounterOpen {
		return models.Break{}, store.ErrCounterClosed
	}
	if counter.CurrentTicketID != nil {
		return models.Break{}, store.ErrCounterBusy
	}
	brk := models.Break{
		BreakID:      uuid.NewString(),
		CounterID:    counterID,
		BranchID:     counter.BranchID,
		Reason:       reason,
		StartedByID:  startedByID,
		StartedAt:    now,
		ExpectedEnd:  now.Add(time.Duration(durationMins) * time.Minute),
		DurationMins: durationMins,
	}
	counter.Status = models.CounterOnBreak
	r.counters[counterID] = counter
	r.breaks[counterID] = brk
	return brk, nil
}

// EndBreak reopens the counter and returns the break that just ended.
func (r *Registry) EndBreak(counterID string) (models.Break, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter, ok := r.counters[counterID]
	if !ok {
		return models.Break{}, store.ErrCounterNotFound
	}
	brk, ok := r.breaks[counterID]
	if !ok {
		return models.Break{}, store.ErrNoActiveBreak
	}
	delete(r.breaks, counterID)
	counter.Status = models.CounterOpen
	r.counters[counterID] = counter
	return brk, nil
}

// ActiveBreaks lists the branch's counters currently on break.
func (r *Registry) ActiveBreaks(branchID string) []models.Break {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Break
	for _, brk := range r.breaks {
		if brk.BranchID == branchID {
			out = append(out, brk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// QueueStatus returns the branch queue state. An unknown branch is open.
func (r *Registry) QueueStatus(branchID string) (status, pausedBy string, pausedAt *time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qs, ok := r.queues[branchID]
	if !ok {
		return models.QueueOpen, "", nil
	}
	return qs.Status, qs.PausedBy, qs.PausedAt
}

// SetQueueStatus records a queue state change for the branch. The actor and
// timestamp are kept only for the paused state.
func (r *Registry) SetQueueStatus(branchID, status, actorID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	qs := &queueState{Status: status}
	if status == models.QueuePaused {
		qs.PausedBy = actorID
		at := now
		qs.PausedAt = &at
	}
	r.queues[branchID] = qs
}
