package alerts

import (
	"testing"
	"time"

	"blesaf/dispatch-service/internal/models"
)

func waiting(id, number string, created time.Time) models.Ticket {
	return models.Ticket{TicketID: id, TicketNumber: number, Status: models.StatusWaiting, CreatedAt: created}
}

func TestLongWaitSeverityBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	th := DefaultThresholds()

	tests := []struct {
		name     string
		waitMins int
		want     string // empty = no alert
	}{
		{"under threshold", 19, ""},
		{"at threshold", 20, SeverityWarning},
		{"just under critical", 29, SeverityWarning},
		{"critical", 31, SeverityCritical},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := Input{
				BranchID: "b-1",
				Waiting:  []models.Ticket{waiting("t-1", "A-101", now.Add(-time.Duration(tc.waitMins)*time.Minute))},
			}
			got := Evaluate(input, th, now)
			if tc.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected no alerts, got %v", got)
				}
				return
			}
			if len(got) != 1 || got[0].Type != TypeLongWait || got[0].Severity != tc.want {
				t.Fatalf("expected %s long_wait, got %v", tc.want, got)
			}
		})
	}
}

func TestQueueDepth(t *testing.T) {
	now := time.Now().UTC()
	th := Thresholds{QueueWarning: 2, QueueCritical: 3}

	mkQueue := func(n int) []models.Ticket {
		out := make([]models.Ticket, n)
		for i := range out {
			out[i] = waiting(string(rune('a'+i)), "A-101", now.Add(-time.Minute))
		}
		return out
	}

	if got := Evaluate(Input{BranchID: "b-1", Waiting: mkQueue(1)}, th, now); len(got) != 0 {
		t.Fatalf("expected no alerts, got %v", got)
	}
	got := Evaluate(Input{BranchID: "b-1", Waiting: mkQueue(2)}, th, now)
	if len(got) != 1 || got[0].Severity != SeverityWarning || got[0].Value != 2 {
		t.Fatalf("expected warning at 2, got %v", got)
	}
	got = Evaluate(Input{BranchID: "b-1", Waiting: mkQueue(3)}, th, now)
	if len(got) != 1 || got[0].Severity != SeverityCritical {
		t.Fatalf("expected critical at 3, got %v", got)
	}
}

func completedBy(tellerID, counterID string, end time.Time, serviceMins int) models.Ticket {
	start := end.Add(-time.Duration(serviceMins) * time.Minute)
	return models.Ticket{
		TicketID:         "t-" + end.Format("150405"),
		Status:           models.StatusCompleted,
		ServedByUserID:   &tellerID,
		CounterID:        &counterID,
		ServingStartedAt: &start,
		CompletedAt:      &end,
	}
}

func TestSlowTellerAveragesCompletedServices(t *testing.T) {
	now := time.Now().UTC()
	th := DefaultThresholds()

	input := Input{
		BranchID: "b-1",
		Completed: []models.Ticket{
			// teller-1 averages (20+20+20)/3 = 20 min, over the 15 min bar.
			completedBy("teller-1", "c-1", now.Add(-40*time.Minute), 20),
			completedBy("teller-1", "c-1", now.Add(-20*time.Minute), 20),
			completedBy("teller-1", "c-1", now.Add(-1*time.Minute), 20),
			// teller-2 had one slow customer but averages (25+5+5)/3 = 11.
			completedBy("teller-2", "c-2", now.Add(-30*time.Minute), 25),
			completedBy("teller-2", "c-2", now.Add(-15*time.Minute), 5),
			completedBy("teller-2", "c-2", now.Add(-2*time.Minute), 5),
		},
	}

	got := Evaluate(input, th, now)
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %v", got)
	}
	alert := got[0]
	if alert.Type != TypeSlowTeller || alert.Severity != SeverityWarning {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if alert.AgentID != "teller-1" || alert.CounterID != "c-1" || alert.Value != 20 {
		t.Fatalf("expected teller-1 averaging 20 min, got %+v", alert)
	}
}

func TestSlowTellerAtThresholdDoesNotFire(t *testing.T) {
	now := time.Now().UTC()
	input := Input{
		BranchID:  "b-1",
		Completed: []models.Ticket{completedBy("teller-1", "c-1", now.Add(-time.Minute), 15)},
	}
	// Average equal to the threshold stays quiet; the rule needs strictly over.
	if got := Evaluate(input, Thresholds{SlowTellerMins: 15}, now); len(got) != 0 {
		t.Fatalf("expected no alerts at the threshold, got %v", got)
	}
}

func TestBreakOvertime(t *testing.T) {
	now := time.Now().UTC()
	th := DefaultThresholds()

	input := Input{
		BranchID: "b-1",
		Completed: []models.Ticket{
			completedBy("teller-1", "c-1", now.Add(-1*time.Minute), 20),
		},
		Breaks: []models.Break{{
			BreakID:     "brk-1",
			CounterID:   "c-2",
			BranchID:    "b-1",
			ExpectedEnd: now.Add(-12 * time.Minute),
		}},
	}

	got := Evaluate(input, th, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %v", got)
	}
	// Break is 12 min over: critical, so it sorts first.
	if got[0].Type != TypeBreakOvertime || got[0].Severity != SeverityCritical || got[0].Value != 12 {
		t.Fatalf("expected critical break_overtime first, got %v", got[0])
	}
	if got[1].Type != TypeSlowTeller || got[1].Severity != SeverityWarning {
		t.Fatalf("expected slow_teller warning second, got %v", got[1])
	}
}

func TestZeroThresholdsDisableRules(t *testing.T) {
	now := time.Now().UTC()
	input := Input{
		BranchID: "b-1",
		Waiting:  []models.Ticket{waiting("t-1", "A-101", now.Add(-2*time.Hour))},
	}
	if got := Evaluate(input, Thresholds{}, now); len(got) != 0 {
		t.Fatalf("expected no alerts with zero thresholds, got %v", got)
	}
}

func TestSortCriticalFirstThenNewest(t *testing.T) {
	now := time.Now().UTC()
	th := DefaultThresholds()
	input := Input{
		BranchID: "b-1",
		Waiting: []models.Ticket{
			waiting("t-old", "A-101", now.Add(-45*time.Minute)),  // critical, older
			waiting("t-new", "A-102", now.Add(-35*time.Minute)),  // critical, newer
			waiting("t-warn", "A-103", now.Add(-25*time.Minute)), // warning
		},
	}
	got := Evaluate(input, th, now)
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts, got %v", got)
	}
	if got[0].TicketID != "t-new" || got[1].TicketID != "t-old" || got[2].TicketID != "t-warn" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].TicketID, got[1].TicketID, got[2].TicketID)
	}
}
