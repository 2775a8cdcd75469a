package sequence

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAllocatorIsolatesDays(t *testing.T) {
	a := NewMemoryAllocator()
	ctx := context.Background()
	today := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tomorrow := today.Add(24 * time.Hour)

	n, err := a.Next(ctx, "b-1", "A", today)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if n != 101 {
		t.Fatalf("expected first number 101, got %d", n)
	}
	if n, _ = a.Next(ctx, "b-1", "A", today); n != 102 {
		t.Fatalf("expected 102, got %d", n)
	}
	// Another prefix and another day each restart at the seed.
	if n, _ = a.Next(ctx, "b-1", "B", today); n != 101 {
		t.Fatalf("prefix B: expected 101, got %d", n)
	}
	if n, _ = a.Next(ctx, "b-1", "A", tomorrow); n != 101 {
		t.Fatalf("next day: expected 101, got %d", n)
	}
	if n, _ = a.Next(ctx, "b-2", "A", today); n != 101 {
		t.Fatalf("other branch: expected 101, got %d", n)
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber("A", 101); got != "A-101" {
		t.Fatalf("got %q", got)
	}
	if got := FormatNumber("VIP", 7); got != "VIP-007" {
		t.Fatalf("got %q", got)
	}
}
