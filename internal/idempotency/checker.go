// Package idempotency derives stable message IDs and answers whether a
// message has already been durably processed (SPEC_FULL.md §4.5).
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Store is the narrow slice of the Repository this checker needs. It is
// satisfied by *internal/db.Store and *internal/db.Tx.
type Store interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// Checker derives message IDs and delegates processed/mark-processed
// lookups to a Store. The hashing scheme (SHA-256 over the normalized
// concatenation of raw text and timestamp) is fixed and must never change
// without a migration plan — see SPEC_FULL.md §4.5.
type Checker struct {
	store Store
}

// New returns a Checker backed by store.
func New(store Store) *Checker {
	return &Checker{store: store}
}

// MessageID derives the stable, deterministic ID for (rawText, timestamp).
// Callers MUST supply a timestamp deterministic with respect to the source
// event (e.g. the chat relay's delivery timestamp), not wall-clock at
// ingestion, or duplicate detection breaks across retries and restarts.
func MessageID(rawText string, timestamp time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(timestamp.UTC().UnixNano(), 10))
	b.WriteByte('\x00')
	b.WriteString(rawText)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// IsProcessed reports whether messageID has already been durably committed.
func (c *Checker) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	return c.store.IsProcessed(ctx, messageID)
}

// MarkProcessed records messageID as processed. Callers must call this
// within the same transaction as the message's ledger effects, per I3.
func (c *Checker) MarkProcessed(ctx context.Context, messageID string) error {
	return c.store.MarkProcessed(ctx, messageID)
}
