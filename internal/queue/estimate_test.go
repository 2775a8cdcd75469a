package queue

import "testing"

func TestEstimateWait(t *testing.T) {
	tests := []struct {
		name         string
		position     int
		avg          int
		openCounters int
		want         int
	}{
		{"single counter", 3, 10, 1, 30},
		{"spread over two", 5, 10, 2, 30},
		{"exact division", 4, 10, 2, 20},
		{"zero counters fall back to one", 2, 10, 0, 20},
		{"zero avg uses default", 1, 0, 1, DefaultAvgServiceMins},
		{"front of queue", 0, 10, 2, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateWait(tc.position, tc.avg, tc.openCounters); got != tc.want {
				t.Fatalf("EstimateWait(%d, %d, %d) = %d, want %d", tc.position, tc.avg, tc.openCounters, got, tc.want)
			}
		})
	}
}

func TestNextCallEstimate(t *testing.T) {
	if got := NextCallEstimate(2, 10); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
	if got := NextCallEstimate(3, 10); got != 4 {
		t.Fatalf("got %d, want 4 (rounded up)", got)
	}
	if got := NextCallEstimate(0, 10); got != 10 {
		t.Fatalf("no open counters: got %d, want 10", got)
	}
	if got := NextCallEstimate(2, 0); got != 5 {
		t.Fatalf("default avg: got %d, want 5", got)
	}
}
