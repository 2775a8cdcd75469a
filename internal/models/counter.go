package models

import "time"

type Counter struct {
	CounterID        string   `json:"counter_id"`
	BranchID         string   `json:"branch_id"`
	Number           int      `json:"number"`
	Label            string   `json:"label,omitempty"`
	Status           string   `json:"status"`
	CurrentTicketID  *string  `json:"current_ticket_id,omitempty"`
	AssignedUserID   string   `json:"assigned_user_id,omitempty"`
	AssignedUserName string   `json:"assigned_user_name,omitempty"`
	ServiceIDs       []string `json:"service_ids,omitempty"`
}

const (
	CounterOpen    = "open"
	CounterClosed  = "closed"
	CounterOnBreak = "on_break"
)

type Service struct {
	ServiceID      string `json:"service_id"`
	BranchID       string `json:"branch_id"`
	Name           string `json:"name"`
	Prefix         string `json:"prefix"`
	AvgServiceMins int    `json:"avg_service_mins"`
	Active         bool   `json:"active"`
}

const (
	QueueOpen   = "open"
	QueuePaused = "paused"
	QueueClosed = "closed"
)

type Break struct {
	BreakID      string    `json:"break_id"`
	CounterID    string    `json:"counter_id"`
	BranchID     string    `json:"branch_id"`
	Reason       string    `json:"reason,omitempty"`
	StartedByID  string    `json:"started_by_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	ExpectedEnd  time.Time `json:"expected_end"`
	DurationMins int       `json:"duration_mins"`
}
