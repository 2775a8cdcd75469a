package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// ComputeHistoryHash chains an entry to its predecessor so tampering with any
// prior record invalidates every hash after it.
func ComputeHistoryHash(prevHash, ticketID, action string, metadata json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%s|%s", prevHash, ticketID, action, seq, createdAt.UTC().Format(time.RFC3339Nano), metadata)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyHistory walks the chain and reports the first entry whose hash does
// not match, or -1 when the chain is intact.
func VerifyHistory(entries []HistoryEntry) int {
	prev := ""
	for i, entry := range entries {
		if entry.PrevHash != prev {
			return i
		}
		if ComputeHistoryHash(prev, entry.TicketID, entry.Action, entry.Metadata, entry.CreatedAt, entry.Seq) != entry.Hash {
			return i
		}
		prev = entry.Hash
	}
	return -1
}
