package models

import "time"

type Ticket struct {
	TicketID         string     `json:"ticket_id"`
	TicketNumber     string     `json:"ticket_number"`
	BranchID         string     `json:"branch_id"`
	ServiceID        string     `json:"service_id"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Phone            string     `json:"phone,omitempty"`
	NotifyChannel    string     `json:"notify_channel,omitempty"`
	CheckinMethod    string     `json:"checkin_method,omitempty"`
	CounterID        *string    `json:"counter_id,omitempty"`
	ServedByUserID   *string    `json:"served_by_user_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	ServingStartedAt *time.Time `json:"serving_started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	PriorityReason   string     `json:"priority_reason,omitempty"`
	PrioritizedBy    string     `json:"prioritized_by,omitempty"`
	PrioritizedAt    *time.Time `json:"prioritized_at,omitempty"`
	Version          int64      `json:"version"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusServing   = "serving"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
	StatusCancelled = "cancelled"
)

const (
	PriorityNormal = "normal"
	PriorityVIP    = "vip"
)

const (
	CheckinKiosk  = "kiosk"
	CheckinMobile = "mobile"
	CheckinManual = "manual"
)

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusNoShow, StatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether the ticket occupies a counter.
func Active(status string) bool {
	return status == StatusCalled || status == StatusServing
}
