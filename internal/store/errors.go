package store

import "errors"

var (
	ErrTicketNotFound         = errors.New("ticket not found")
	ErrCounterNotFound        = errors.New("counter not found")
	ErrServiceNotFound        = errors.New("service not found")
	ErrBranchNotFound         = errors.New("branch not found")
	ErrInvalidTransition      = errors.New("invalid ticket transition")
	ErrNoEligibleTicket       = errors.New("no eligible ticket")
	ErrConcurrentModification = errors.New("concurrent ticket modification")
	ErrQueuePaused            = errors.New("queue paused")
	ErrQueueClosed            = errors.New("queue closed")
	ErrCounterBusy            = errors.New("counter busy")
	ErrCounterClosed          = errors.New("counter closed")
	ErrCounterMismatch        = errors.New("counter mismatch")
	ErrAlreadyVIP             = errors.New("ticket already vip")
	ErrNotTicketOwner         = errors.New("ticket owned by another teller")
	ErrBreakActive            = errors.New("break already active")
	ErrNoActiveBreak          = errors.New("no active break")
)
