// Package sequence hands out ticket numbers. Numbers restart each day per
// branch and service prefix and start at 101 so displays never show a
// single-digit ticket.
package sequence

import (
	"context"
	"fmt"
	"time"
)

const seedValue = 100

// Allocator returns the next ticket number for a branch/prefix on the given
// day. Implementations must be safe for concurrent use across processes.
type Allocator interface {
	Next(ctx context.Context, branchID, prefix string, day time.Time) (int64, error)
}

// FormatNumber renders the printed ticket number, e.g. "A-101".
func FormatNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

func dayKey(branchID, prefix string, day time.Time) string {
	return fmt.Sprintf("seq:%s:%s:%s", branchID, prefix, day.UTC().Format("2006-01-02"))
}
