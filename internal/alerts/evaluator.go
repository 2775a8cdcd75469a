// Package alerts derives SLA alerts from a branch snapshot. Evaluation is
// pure: the caller collects state, Evaluate ranks the problems.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"blesaf/dispatch-service/internal/models"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	TypeLongWait      = "long_wait"
	TypeQueueDepth    = "queue_depth"
	TypeSlowTeller    = "slow_teller"
	TypeBreakOvertime = "break_overtime"
)

// longWaitCriticalBump is how many minutes past the long-wait threshold a
// ticket escalates from warning to critical.
const longWaitCriticalBump = 10

// breakOvertimeCriticalMins escalates an overrun break to critical.
const breakOvertimeCriticalMins = 10

type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	BranchID  string    `json:"branch_id"`
	TicketID  string    `json:"ticket_id,omitempty"`
	CounterID string    `json:"counter_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Message   string    `json:"message"`
	Value     int       `json:"value"`
	Since     time.Time `json:"since"`
}

// Thresholds configure the rules. A zero threshold disables its rule.
type Thresholds struct {
	LongWaitMins   int
	QueueWarning   int
	QueueCritical  int
	SlowTellerMins int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LongWaitMins:   20,
		QueueWarning:   10,
		QueueCritical:  20,
		SlowTellerMins: 15,
	}
}

// Input is the branch state the rules run over. Completed holds the tickets
// finished within the caller's rolling window and feeds the per-teller
// service-time averages; entries must carry ServedByUserID,
// ServingStartedAt, and CompletedAt.
type Input struct {
	BranchID  string
	Waiting   []models.Ticket
	Completed []models.Ticket
	Breaks    []models.Break
}

// Evaluate applies every enabled rule and returns alerts ordered critical
// first, then newest condition first, with the id as a final tie-break so the
// order is stable across runs.
func Evaluate(input Input, th Thresholds, now time.Time) []Alert {
	var out []Alert

	if th.LongWaitMins > 0 {
		for _, ticket := range input.Waiting {
			mins := int(now.Sub(ticket.CreatedAt).Minutes())
			if mins < th.LongWaitMins {
				continue
			}
			severity := SeverityWarning
			if mins >= th.LongWaitMins+longWaitCriticalBump {
				severity = SeverityCritical
			}
			out = append(out, Alert{
				ID:       TypeLongWait + ":" + ticket.TicketID,
				Type:     TypeLongWait,
				Severity: severity,
				BranchID: input.BranchID,
				TicketID: ticket.TicketID,
				Message:  fmt.Sprintf("ticket %s has been waiting %d min", ticket.TicketNumber, mins),
				Value:    mins,
				Since:    ticket.CreatedAt,
			})
		}
	}

	if th.QueueWarning > 0 && len(input.Waiting) >= th.QueueWarning {
		severity := SeverityWarning
		if th.QueueCritical > 0 && len(input.Waiting) >= th.QueueCritical {
			severity = SeverityCritical
		}
		out = append(out, Alert{
			ID:       TypeQueueDepth + ":" + input.BranchID,
			Type:     TypeQueueDepth,
			Severity: severity,
			BranchID: input.BranchID,
			Message:  fmt.Sprintf("%d customers waiting", len(input.Waiting)),
			Value:    len(input.Waiting),
			Since:    now,
		})
	}

	// Slow teller is judged on the rolling average of completed service
	// times per agent, not on any single long customer.
	if th.SlowTellerMins > 0 {
		type tellerStats struct {
			total     time.Duration
			count     int
			counterID string
			last      time.Time
		}
		perAgent := make(map[string]*tellerStats)
		for _, ticket := range input.Completed {
			if ticket.ServedByUserID == nil || ticket.ServingStartedAt == nil || ticket.CompletedAt == nil {
				continue
			}
			stats, ok := perAgent[*ticket.ServedByUserID]
			if !ok {
				stats = &tellerStats{}
				perAgent[*ticket.ServedByUserID] = stats
			}
			stats.total += ticket.CompletedAt.Sub(*ticket.ServingStartedAt)
			stats.count++
			if ticket.CounterID != nil {
				stats.counterID = *ticket.CounterID
			}
			if ticket.CompletedAt.After(stats.last) {
				stats.last = *ticket.CompletedAt
			}
		}
		for agentID, stats := range perAgent {
			avg := int((stats.total / time.Duration(stats.count)).Minutes())
			if avg <= th.SlowTellerMins {
				continue
			}
			out = append(out, Alert{
				ID:        TypeSlowTeller + ":" + agentID,
				Type:      TypeSlowTeller,
				Severity:  SeverityWarning,
				BranchID:  input.BranchID,
				CounterID: stats.counterID,
				AgentID:   agentID,
				Message:   fmt.Sprintf("teller %s is averaging %d min per customer", agentID, avg),
				Value:     avg,
				Since:     stats.last,
			})
		}
	}

	for _, brk := range input.Breaks {
		over := int(now.Sub(brk.ExpectedEnd).Minutes())
		if over <= 0 {
			continue
		}
		severity := SeverityWarning
		if over >= breakOvertimeCriticalMins {
			severity = SeverityCritical
		}
		out = append(out, Alert{
			ID:        TypeBreakOvertime + ":" + brk.BreakID,
			Type:      TypeBreakOvertime,
			Severity:  severity,
			BranchID:  input.BranchID,
			CounterID: brk.CounterID,
			Message:   fmt.Sprintf("break on counter %s is %d min over", brk.CounterID, over),
			Value:     over,
			Since:     brk.ExpectedEnd,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity == SeverityCritical
		}
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.After(out[j].Since)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
