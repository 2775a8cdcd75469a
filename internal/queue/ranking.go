package queue

import (
	"sort"

	"blesaf/dispatch-service/internal/models"
)

// Rank orders waiting tickets: vip before normal, then oldest first. Equal
// timestamps fall back to ticket id so the order is total and any two calls
// on the same snapshot produce an identical sequence.
func Rank(tickets []models.Ticket) []models.Ticket {
	ranked := make([]models.Ticket, len(tickets))
	copy(ranked, tickets)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Before(ranked[i], ranked[j])
	})
	return ranked
}

// Before reports whether a ranks strictly ahead of b.
func Before(a, b models.Ticket) bool {
	av, bv := a.Priority == models.PriorityVIP, b.Priority == models.PriorityVIP
	if av != bv {
		return av
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.TicketID < b.TicketID
}

// Position returns the 1-based rank of ticketID within the waiting set, or 0
// when the ticket is not in the set.
func Position(tickets []models.Ticket, ticketID string) int {
	var target *models.Ticket
	for i := range tickets {
		if tickets[i].TicketID == ticketID {
			target = &tickets[i]
			break
		}
	}
	if target == nil {
		return 0
	}
	position := 1
	for i := range tickets {
		if tickets[i].TicketID == ticketID {
			continue
		}
		if Before(tickets[i], *target) {
			position++
		}
	}
	return position
}
