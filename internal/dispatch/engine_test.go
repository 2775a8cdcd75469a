package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"blesaf/dispatch-service/internal/alerts"
	"blesaf/dispatch-service/internal/counters"
	"blesaf/dispatch-service/internal/hub"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/sequence"
	"blesaf/dispatch-service/internal/store"
	"blesaf/dispatch-service/internal/store/memory"
)

const testBranch = "branch-1"

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *counters.Registry) {
	t.Helper()
	ms := memory.NewStore()
	ms.SeedService(models.Service{ServiceID: "svc-dep", BranchID: testBranch, Name: "Deposits", Prefix: "A", AvgServiceMins: 10, Active: true})
	ms.SeedService(models.Service{ServiceID: "svc-loan", BranchID: testBranch, Name: "Loans", Prefix: "B", AvgServiceMins: 20, Active: true})

	reg := counters.NewRegistry()
	reg.SeedCounter(models.Counter{CounterID: "c-1", BranchID: testBranch, Number: 1, Status: models.CounterOpen})
	reg.SeedCounter(models.Counter{CounterID: "c-2", BranchID: testBranch, Number: 2, Status: models.CounterOpen, ServiceIDs: []string{"svc-loan"}})

	e := NewEngine(ms, reg, sequence.NewMemoryAllocator(), hub.NewHub(1024), nil, alerts.DefaultThresholds())
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), step: time.Second}
	e.now = clock.Now
	return e, ms, reg
}

func checkin(t *testing.T, e *Engine, serviceID string) models.Ticket {
	t.Helper()
	result, err := e.Checkin(context.Background(), CheckinRequest{BranchID: testBranch, ServiceID: serviceID})
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	return result.Ticket
}

func TestCheckinCallCompleteHappyPath(t *testing.T) {
	e, _, reg := newTestEngine(t)
	ctx := context.Background()

	result, err := e.Checkin(ctx, CheckinRequest{BranchID: testBranch, ServiceID: "svc-dep", Phone: "+21612345678"})
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if result.Ticket.TicketNumber != "A-101" {
		t.Fatalf("unexpected ticket number %q", result.Ticket.TicketNumber)
	}
	if result.Position != 1 {
		t.Fatalf("expected position 1, got %d", result.Position)
	}
	if result.Ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected status %q", result.Ticket.Status)
	}

	called, err := e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.TicketID != result.Ticket.TicketID {
		t.Fatal("wrong ticket called")
	}
	if called.Status != models.StatusCalled || called.CalledAt == nil || called.ServingStartedAt == nil {
		t.Fatalf("call did not stamp timestamps: %+v", called)
	}
	if counter, _ := reg.GetCounter("c-1"); counter.CurrentTicketID == nil || *counter.CurrentTicketID != called.TicketID {
		t.Fatal("counter not claimed")
	}

	done, err := e.CompleteTicket(ctx, called.TicketID, "teller-1")
	if err != nil {
		t.Fatalf("CompleteTicket: %v", err)
	}
	if done.Status != models.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completion state %+v", done)
	}
	if counter, _ := reg.GetCounter("c-1"); counter.CurrentTicketID != nil {
		t.Fatal("counter not released after completion")
	}

	if _, err := e.CompleteTicket(ctx, called.TicketID, "teller-1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("double complete: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCallNextOrderAndServiceFilter(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	dep := checkin(t, e, "svc-dep")
	loan := checkin(t, e, "svc-loan")

	// c-2 only serves loans, so it skips the older deposits ticket.
	called, err := e.CallNext(ctx, testBranch, "c-2", "teller-2")
	if err != nil {
		t.Fatalf("CallNext c-2: %v", err)
	}
	if called.TicketID != loan.TicketID {
		t.Fatalf("expected loan ticket, got %s", called.TicketNumber)
	}

	// c-1 serves everything and picks up the deposits ticket.
	called, err = e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext c-1: %v", err)
	}
	if called.TicketID != dep.TicketID {
		t.Fatalf("expected deposits ticket, got %s", called.TicketNumber)
	}
}

func TestCallNextEmptyQueueAndBusyCounter(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); !errors.Is(err, store.ErrNoEligibleTicket) {
		t.Fatalf("expected ErrNoEligibleTicket, got %v", err)
	}

	checkin(t, e, "svc-dep")
	checkin(t, e, "svc-dep")
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); !errors.Is(err, store.ErrCounterBusy) {
		t.Fatalf("expected ErrCounterBusy, got %v", err)
	}
	if _, err := e.CallNext(ctx, testBranch, "c-missing", "teller-1"); !errors.Is(err, store.ErrCounterNotFound) {
		t.Fatalf("expected ErrCounterNotFound, got %v", err)
	}
}

func TestCompleteRequiresCallingTeller(t *testing.T) {
	e, _, reg := newTestEngine(t)
	ctx := context.Background()

	ticket := checkin(t, e, "svc-dep")
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	if _, err := e.CompleteTicket(ctx, ticket.TicketID, "teller-2"); !errors.Is(err, store.ErrNotTicketOwner) {
		t.Fatalf("expected ErrNotTicketOwner, got %v", err)
	}
	if _, err := e.MarkNoShow(ctx, ticket.TicketID, "teller-2"); !errors.Is(err, store.ErrNotTicketOwner) {
		t.Fatalf("expected ErrNotTicketOwner on no-show, got %v", err)
	}
	if counter, _ := reg.GetCounter("c-1"); counter.CurrentTicketID == nil {
		t.Fatal("rejected completion must not release the counter")
	}

	done, err := e.CompleteTicket(ctx, ticket.TicketID, "teller-1")
	if err != nil {
		t.Fatalf("CompleteTicket by owner: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Fatalf("unexpected status %q", done.Status)
	}
}

func TestCompleteRecordsServiceTime(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	ticket := checkin(t, e, "svc-dep")
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	watcher := e.hub.Register("watcher")
	defer e.hub.Unregister("watcher")
	e.hub.Subscribe("watcher", hub.BranchRoom(testBranch))

	// The customer takes twenty minutes at the counter.
	base := e.now()
	e.now = func() time.Time { return base.Add(20 * time.Minute) }

	if _, err := e.CompleteTicket(ctx, ticket.TicketID, "teller-1"); err != nil {
		t.Fatalf("CompleteTicket: %v", err)
	}

	var payload map[string]any
	for done := false; !done; {
		select {
		case event := <-watcher.Send:
			if event.Type == hub.EventTicketCompleted {
				payload = event.Payload.(map[string]any)
				done = true
			}
		default:
			done = true
		}
	}
	if payload == nil {
		t.Fatal("no ticket:completed event received")
	}
	if got, ok := payload["service_time_mins"].(int); !ok || got != 20 {
		t.Fatalf("expected service_time_mins 20 in event payload, got %v", payload["service_time_mins"])
	}

	entries, err := e.TicketHistory(ctx, ticket.TicketID)
	if err != nil {
		t.Fatalf("TicketHistory: %v", err)
	}
	var meta struct {
		ServiceTimeMins int `json:"service_time_mins"`
	}
	found := false
	for _, entry := range entries {
		if entry.Action != store.ActionCompleted {
			continue
		}
		if err := json.Unmarshal(entry.Metadata, &meta); err != nil {
			t.Fatalf("decode completion metadata: %v", err)
		}
		found = true
	}
	if !found {
		t.Fatal("no completion history entry")
	}
	if meta.ServiceTimeMins != 20 {
		t.Fatalf("expected service_time_mins 20 in history metadata, got %d", meta.ServiceTimeMins)
	}
}

func TestNoShowFreesCounter(t *testing.T) {
	e, _, reg := newTestEngine(t)
	ctx := context.Background()

	first := checkin(t, e, "svc-dep")
	second := checkin(t, e, "svc-dep")

	called, err := e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.TicketID != first.TicketID {
		t.Fatal("wrong ticket called first")
	}
	if _, err := e.MarkNoShow(ctx, called.TicketID, "teller-1"); err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	if counter, _ := reg.GetCounter("c-1"); counter.CurrentTicketID != nil {
		t.Fatal("counter still claimed after no-show")
	}

	called, err = e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext after no-show: %v", err)
	}
	if called.TicketID != second.TicketID {
		t.Fatal("expected second ticket after no-show")
	}
}

func TestTransferPreservesCreatedAtAndRenumbers(t *testing.T) {
	e, _, reg := newTestEngine(t)
	ctx := context.Background()

	first := checkin(t, e, "svc-dep")
	checkin(t, e, "svc-dep")

	called, err := e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	transferred, err := e.TransferTicket(ctx, called.TicketID, "svc-loan", "teller-1")
	if err != nil {
		t.Fatalf("TransferTicket: %v", err)
	}
	if transferred.Status != models.StatusWaiting {
		t.Fatalf("expected waiting, got %q", transferred.Status)
	}
	if !transferred.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("transfer must preserve original check-in time")
	}
	if transferred.TicketNumber != "B-101" {
		t.Fatalf("expected renumber under target prefix, got %q", transferred.TicketNumber)
	}
	if transferred.CounterID != nil || transferred.CalledAt != nil || transferred.ServingStartedAt != nil {
		t.Fatalf("transfer did not clear call state: %+v", transferred)
	}
	if counter, _ := reg.GetCounter("c-1"); counter.CurrentTicketID != nil {
		t.Fatal("counter still claimed after transfer")
	}

	// Oldest created ticket, so it goes back to the front.
	called, err = e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext after transfer: %v", err)
	}
	if called.TicketID != transferred.TicketID {
		t.Fatal("transferred ticket lost its place in the queue")
	}
}

func TestBumpPriorityMovesToFront(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	checkin(t, e, "svc-dep")
	checkin(t, e, "svc-dep")
	third := checkin(t, e, "svc-dep")

	bumped, err := e.BumpPriority(ctx, third.TicketID, "elderly customer", "mgr-1")
	if err != nil {
		t.Fatalf("BumpPriority: %v", err)
	}
	if bumped.Priority != models.PriorityVIP || bumped.PriorityReason != "elderly customer" {
		t.Fatalf("unexpected bump result %+v", bumped)
	}
	if !bumped.CreatedAt.Equal(third.CreatedAt) {
		t.Fatal("bump must not rewrite the check-in time")
	}

	if _, err := e.BumpPriority(ctx, third.TicketID, "again", "mgr-1"); !errors.Is(err, store.ErrAlreadyVIP) {
		t.Fatalf("expected ErrAlreadyVIP, got %v", err)
	}

	called, err := e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.TicketID != third.TicketID {
		t.Fatal("vip ticket not called first")
	}

	if _, err := e.BumpPriority(ctx, called.TicketID, "late", "mgr-1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on called ticket, got %v", err)
	}
}

func TestCancelWaitingOnly(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	ticket := checkin(t, e, "svc-dep")
	cancelled, err := e.CancelTicket(ctx, ticket.TicketID, "customer")
	if err != nil {
		t.Fatalf("CancelTicket: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("unexpected status %q", cancelled.Status)
	}

	ticket = checkin(t, e, "svc-dep")
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if _, err := e.CancelTicket(ctx, ticket.TicketID, "customer"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on called ticket, got %v", err)
	}
}

func TestCheckinRejectedWhenPausedOrClosed(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	checkin(t, e, "svc-dep")
	e.PauseQueue(ctx, testBranch, "mgr-1")
	if _, err := e.Checkin(ctx, CheckinRequest{BranchID: testBranch, ServiceID: "svc-dep"}); !errors.Is(err, store.ErrQueuePaused) {
		t.Fatalf("expected ErrQueuePaused, got %v", err)
	}
	// Calling continues while paused.
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext while paused: %v", err)
	}

	e.ResumeQueue(ctx, testBranch, "mgr-1")
	if _, err := e.Checkin(ctx, CheckinRequest{BranchID: testBranch, ServiceID: "svc-dep"}); err != nil {
		t.Fatalf("Checkin after resume: %v", err)
	}

	if _, err := e.AutoCloseQueue(ctx, testBranch); err != nil {
		t.Fatalf("AutoCloseQueue: %v", err)
	}
	if _, err := e.Checkin(ctx, CheckinRequest{BranchID: testBranch, ServiceID: "svc-dep"}); !errors.Is(err, store.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestCheckinUnknownOrForeignService(t *testing.T) {
	e, ms, _ := newTestEngine(t)
	ctx := context.Background()
	ms.SeedService(models.Service{ServiceID: "svc-other", BranchID: "branch-2", Name: "Other", Prefix: "Z", Active: true})

	if _, err := e.Checkin(ctx, CheckinRequest{BranchID: testBranch, ServiceID: "svc-missing"}); !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if _, err := e.Checkin(ctx, CheckinRequest{BranchID: testBranch, ServiceID: "svc-other"}); !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound for foreign service, got %v", err)
	}
}

func TestAutoCloseCancelsLeftovers(t *testing.T) {
	e, ms, reg := newTestEngine(t)
	ctx := context.Background()

	first := checkin(t, e, "svc-dep")
	second := checkin(t, e, "svc-dep")
	third := checkin(t, e, "svc-dep")

	// first gets served to completion, second is mid-call, third still waits.
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if _, err := e.StartServing(ctx, first.TicketID, "teller-1"); err != nil {
		t.Fatalf("StartServing: %v", err)
	}
	if _, err := e.CompleteTicket(ctx, first.TicketID, "teller-1"); err != nil {
		t.Fatalf("CompleteTicket: %v", err)
	}
	if _, err := e.CallNext(ctx, testBranch, "c-1", "teller-1"); err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	cancelled, err := e.AutoCloseQueue(ctx, testBranch)
	if err != nil {
		t.Fatalf("AutoCloseQueue: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 cancellations, got %d", cancelled)
	}
	if got, _ := ms.GetTicket(ctx, first.TicketID); got.Status != models.StatusCompleted {
		t.Fatalf("completed ticket touched: %q", got.Status)
	}
	if got, _ := ms.GetTicket(ctx, second.TicketID); got.Status != models.StatusCancelled {
		t.Fatalf("called ticket not cancelled: %q", got.Status)
	}
	if got, _ := ms.GetTicket(ctx, third.TicketID); got.Status != models.StatusCancelled {
		t.Fatalf("waiting ticket not cancelled: %q", got.Status)
	}
	if counter, _ := reg.GetCounter("c-1"); counter.CurrentTicketID != nil {
		t.Fatal("counter not released on auto close")
	}
}

func TestConcurrentCallNextClaimsEachTicketOnce(t *testing.T) {
	const numCounters = 5
	const numTickets = 3

	e, ms, reg := newTestEngine(t)
	ctx := context.Background()
	for i := 3; i <= numCounters; i++ {
		reg.SeedCounter(models.Counter{CounterID: "c-" + string(rune('0'+i)), BranchID: testBranch, Number: i, Status: models.CounterOpen})
	}
	// Replace the fake clock: concurrent callers need a race-safe source.
	e.now = func() time.Time { return time.Now().UTC() }

	var ticketIDs []string
	for i := 0; i < numTickets; i++ {
		ticketIDs = append(ticketIDs, checkin(t, e, "svc-dep").TicketID)
	}

	type outcome struct {
		ticketID string
		err      error
	}
	results := make(chan outcome, numCounters)
	var wg sync.WaitGroup
	for i := 1; i <= numCounters; i++ {
		wg.Add(1)
		go func(counterID string) {
			defer wg.Done()
			ticket, err := e.CallNext(ctx, testBranch, counterID, "teller")
			results <- outcome{ticketID: ticket.TicketID, err: err}
		}("c-" + string(rune('0'+i)))
	}
	wg.Wait()
	close(results)

	claimed := make(map[string]bool)
	misses := 0
	for res := range results {
		if res.err != nil {
			if !errors.Is(res.err, store.ErrNoEligibleTicket) {
				t.Fatalf("unexpected error %v", res.err)
			}
			misses++
			continue
		}
		if claimed[res.ticketID] {
			t.Fatalf("ticket %s claimed twice", res.ticketID)
		}
		claimed[res.ticketID] = true
	}
	if len(claimed) != numTickets || misses != numCounters-numTickets {
		t.Fatalf("expected %d claims and %d misses, got %d and %d", numTickets, numCounters-numTickets, len(claimed), misses)
	}
	for _, id := range ticketIDs {
		ticket, err := ms.GetTicket(ctx, id)
		if err != nil {
			t.Fatalf("GetTicket: %v", err)
		}
		if ticket.Status != models.StatusCalled {
			t.Fatalf("ticket %s not called: %q", id, ticket.Status)
		}
	}
}

func TestSnapshotAndPosition(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	a := checkin(t, e, "svc-dep")
	b := checkin(t, e, "svc-dep")
	c := checkin(t, e, "svc-dep")

	snapshot, err := e.GetBranchSnapshot(ctx, testBranch)
	if err != nil {
		t.Fatalf("GetBranchSnapshot: %v", err)
	}
	if len(snapshot.Waiting) != 3 {
		t.Fatalf("expected 3 waiting, got %d", len(snapshot.Waiting))
	}
	for i, want := range []string{a.TicketID, b.TicketID, c.TicketID} {
		if snapshot.Waiting[i].TicketID != want || snapshot.Waiting[i].Position != i+1 {
			t.Fatalf("unexpected ranking at %d: %+v", i, snapshot.Waiting[i])
		}
	}

	pos, err := e.GetTicketPosition(ctx, c.TicketID)
	if err != nil {
		t.Fatalf("GetTicketPosition: %v", err)
	}
	if pos.Position != 3 {
		t.Fatalf("expected position 3, got %d", pos.Position)
	}
	// Two open counters serve deposits: ceil(3/2) * 10 = 20... but c-2 only
	// serves loans, so one counter: 3 * 10 = 30.
	if pos.EstimateMins != 30 {
		t.Fatalf("expected estimate 30, got %d", pos.EstimateMins)
	}

	called, err := e.CallNext(ctx, testBranch, "c-1", "teller-1")
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	pos, err = e.GetTicketPosition(ctx, called.TicketID)
	if err != nil {
		t.Fatalf("GetTicketPosition: %v", err)
	}
	if pos.Status != models.StatusCalled || pos.CounterNumber != 1 {
		t.Fatalf("unexpected active position %+v", pos)
	}
}

func TestCheckinLosesRaceAgainstPause(t *testing.T) {
	e, _, reg := newTestEngine(t)

	// Hold the branch lock so the check-in parks on it, then pause the queue
	// before letting it through. The pause must win.
	lock := e.branchLock(testBranch)
	lock.Lock()

	errs := make(chan error, 1)
	go func() {
		_, err := e.Checkin(context.Background(), CheckinRequest{BranchID: testBranch, ServiceID: "svc-dep"})
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	reg.SetQueueStatus(testBranch, models.QueuePaused, "mgr-1", time.Now().UTC())
	lock.Unlock()

	if err := <-errs; !errors.Is(err, store.ErrQueuePaused) {
		t.Fatalf("expected ErrQueuePaused, got %v", err)
	}
}

func TestEvaluateAlertsUsesBranchState(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	checkin(t, e, "svc-dep")
	// Jump the clock 31 minutes past check-in.
	base := e.now()
	e.now = func() time.Time { return base.Add(31 * time.Minute) }

	result := e.EvaluateAlerts(ctx, testBranch)
	if len(result) != 1 {
		t.Fatalf("expected 1 alert, got %v", result)
	}
	if result[0].Type != alerts.TypeLongWait || result[0].Severity != alerts.SeverityCritical {
		t.Fatalf("unexpected alert %+v", result[0])
	}
}

func TestEvaluateAlertsFlagsSlowTeller(t *testing.T) {
	e, ms, _ := newTestEngine(t)
	ctx := context.Background()

	// Three completions in the last hour, twenty minutes at the counter each,
	// against the default fifteen-minute threshold.
	tellerID := "teller-9"
	counterID := "c-1"
	for i := 0; i < 3; i++ {
		started := time.Date(2026, 3, 2, 8, i*20, 0, 0, time.UTC)
		done := started.Add(20 * time.Minute)
		_, err := ms.CreateTicket(ctx, models.Ticket{
			TicketID:         fmt.Sprintf("done-%d", i),
			TicketNumber:     fmt.Sprintf("A-%d", 90+i),
			BranchID:         testBranch,
			ServiceID:        "svc-dep",
			Status:           models.StatusCompleted,
			Priority:         models.PriorityNormal,
			CounterID:        &counterID,
			ServedByUserID:   &tellerID,
			ServingStartedAt: &started,
			CompletedAt:      &done,
			CreatedAt:        started,
		}, store.HistoryEntry{Action: store.ActionCreated, CreatedAt: started})
		if err != nil {
			t.Fatalf("CreateTicket: %v", err)
		}
	}

	result := e.EvaluateAlerts(ctx, testBranch)
	if len(result) != 1 {
		t.Fatalf("expected 1 alert, got %v", result)
	}
	got := result[0]
	if got.Type != alerts.TypeSlowTeller || got.AgentID != tellerID || got.Value != 20 {
		t.Fatalf("unexpected alert %+v", got)
	}
}
