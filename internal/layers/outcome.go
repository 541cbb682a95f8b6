// Package layers implements the five verification layers (plus the SL
// requeue recheck) that progressively identify a book, fanning out across
// internal/providers and folding evidence into internal/profile.
package layers

import "github.com/drallgood/libraryd/internal/database"

// Action is what a layer decided to do with one item, mirroring the
// teacher-adjacent Python pipeline's LayerAction enum.
type Action string

const (
	// ActionResolved means the item was identified with enough confidence
	// to stop: a pending_fix row is written and the queue entry cleared.
	ActionResolved Action = "resolved"
	// ActionAdvance moves the item to the next layer for further work.
	ActionAdvance Action = "advance"
	// ActionSkip means this layer had nothing to do with the item; no
	// database change.
	ActionSkip Action = "skip"
	// ActionRetry means a transient failure (rate limit, timeout)
	// occurred; the item stays at this layer for the next cycle.
	ActionRetry Action = "retry"
	// ActionError means processing failed in a way that needs operator
	// attention.
	ActionError Action = "error"
	// ActionTerminal parks the item in a non-pending terminal status
	// (e.g. needs_attention) that the engine must never revisit without an
	// explicit rescan, distinct from ActionError's transient-failure intent.
	ActionTerminal Action = "terminal"
)

// Result is what Layer.Process returns for one book.
type Result struct {
	Action     Action
	Confidence int
	Source     string
	Message    string
	Err        error
	// NextLayer overrides the default layer.Number()+1 advance target.
	NextLayer *int
	// History, if non-nil, is persisted alongside the book update.
	History *database.HistoryEntry
	// Verified marks an ActionResolved outcome where the layer confirmed
	// the existing on-disk metadata rather than proposing a change: the
	// book goes straight to StatusVerified instead of StatusPendingFix.
	Verified bool
	// TerminalStatus is the BookStatus to apply for ActionTerminal.
	TerminalStatus database.BookStatus
}

func intPtr(n int) *int { return &n }
