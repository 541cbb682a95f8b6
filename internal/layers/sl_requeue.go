package layers

import (
	"context"
	"time"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/profile"
)

// SLRequeueVerifier re-checks books the primary identification service
// flagged with requeue_suggested (its database hadn't merged the nightly
// scrape yet): once RequeueAfter has elapsed, ask again and upgrade
// confidence if it now resolves, grounded on worker.py's "SL REQUEUE CHECK
// (Phase 5)" step that runs between Layer 2 and Layer 3.
type SLRequeueVerifier struct {
	Identifier IdentifierReQuery
}

// IdentifierReQuery re-runs a lookup by the original audio transcript/hint
// rather than resubmitting the clip.
type IdentifierReQuery interface {
	Requery(ctx context.Context, folderHint string) (*database.Book, bool, error)
}

// Process re-checks one due book. It does not implement the Layer interface
// since it is not keyed by VerificationLayer like the five numbered layers —
// the worker calls it directly against Repository.PendingSLRequeues.
func (v *SLRequeueVerifier) Process(ctx context.Context, book *database.Book) Result {
	if book.Profile.SLRequeue == nil {
		return Result{Action: ActionSkip}
	}

	hint := folderHint(book)
	updated, found, err := v.requery(ctx, hint)
	if err != nil {
		return Result{Action: ActionRetry, Err: err, Message: "SL requeue recheck failed"}
	}

	p := book.Profile
	now := time.Now().UTC()
	if !found {
		p.SLRequeueComplete = &profile.SLRequeueComplete{CheckedAt: now, Result: "not_found"}
		p.SLRequeue = nil
		book.Profile = p
		return Result{Action: ActionSkip, Message: "SL requeue recheck found nothing new"}
	}

	p.SLVerified = &profile.SLVerified{BookID: book.ID, VerifiedAt: now, ConfidenceBoost: 15}
	p.SLRequeue = nil
	if updated.Author != "" {
		p.AddAuthor(profile.SourceBookDB, updated.Author)
	}
	if updated.Title != "" {
		p.AddTitle(profile.SourceBookDB, updated.Title)
	}
	p.Finalize()
	book.Profile = p

	history := &database.HistoryEntry{
		BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
		NewAuthor: p.Author.Value, NewTitle: p.Title.Value,
		OldPath: book.Path, Status: database.HistoryPendingFix,
	}
	confidence := p.OverallConfidence
	if confidence < 95 {
		confidence += p.SLVerified.ConfidenceBoost
		if confidence > 95 {
			confidence = 95
		}
	}
	return Result{Action: ActionResolved, Confidence: confidence,
		Message: "SL requeue recheck resolved the book after nightly merge", History: history}
}

func (v *SLRequeueVerifier) requery(ctx context.Context, hint string) (*database.Book, bool, error) {
	if v.Identifier == nil {
		return nil, false, nil
	}
	book, found, err := v.Identifier.Requery(ctx, hint)
	return book, found, err
}
