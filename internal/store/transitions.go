package store

import "blesaf/dispatch-service/internal/models"

const (
	ActionCreated       = "created"
	ActionCalled        = "called"
	ActionServing       = "serving"
	ActionCompleted     = "completed"
	ActionNoShow        = "no_show"
	ActionCancelled     = "cancelled"
	ActionTransferred   = "transferred"
	ActionPriorityBump  = "priority_bumped"
	ActionAutoCancelled = "auto_cancelled"
)

var transitionMap = map[string][]string{
	ActionCalled:        {models.StatusWaiting},
	ActionServing:       {models.StatusCalled},
	ActionCompleted:     {models.StatusCalled, models.StatusServing},
	ActionNoShow:        {models.StatusCalled, models.StatusServing},
	ActionTransferred:   {models.StatusCalled, models.StatusServing},
	ActionPriorityBump:  {models.StatusWaiting},
	ActionCancelled:     {models.StatusWaiting},
	ActionAutoCancelled: {models.StatusWaiting, models.StatusCalled},
}

// ValidTransition reports whether action may be applied to a ticket currently
// in fromStatus. Terminal statuses admit nothing.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
