package queue

// DefaultAvgServiceMins is used when a service has no configured or observed
// handling time.
const DefaultAvgServiceMins = 10

// EstimateWait computes the estimated wait in minutes for a ticket at the
// given queue position, spreading the load over the branch's open counters.
// The result is a lower bound, not a promise.
func EstimateWait(position, avgServiceMins, openCounters int) int {
	if position <= 0 {
		return 0
	}
	if avgServiceMins <= 0 {
		avgServiceMins = DefaultAvgServiceMins
	}
	if openCounters < 1 {
		openCounters = 1
	}
	rounds := (position + openCounters - 1) / openCounters
	return rounds * avgServiceMins
}

// NextCallEstimate estimates minutes until the head of the queue is called,
// i.e. until one of the open counters becomes available.
func NextCallEstimate(openCounters, avgServiceMins int) int {
	if avgServiceMins <= 0 {
		avgServiceMins = DefaultAvgServiceMins
	}
	if openCounters < 1 {
		return avgServiceMins
	}
	return (avgServiceMins + openCounters - 1) / openCounters
}
