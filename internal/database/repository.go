package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drallgood/libraryd/internal/logger"
)

// Repository provides the store operations the layer engine and worker need,
// built around the batch/DB discipline: detached reads, external calls with
// no connection held, a single commit per batch.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps a *gorm.DB with the book-processing CRUD surface.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FetchBatch loads up to limit detached Book rows whose queue entry sits at
// the given verification layer, ordered by (priority, added_at). The
// returned books are plain structs the caller can hold across external I/O
// without keeping a connection open.
func (r *Repository) FetchBatch(layer, limit int) ([]Book, error) {
	var entries []QueueEntry
	if err := r.db.
		Where("book_id IN (?)", r.db.Model(&Book{}).
			Select("id").
			Where("verification_layer = ? AND status NOT IN ?", layer, terminalStatuses())).
		Order("priority ASC, added_at ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("fetching queue batch: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.BookID)
	}

	var books []Book
	if err := r.db.Where("id IN ? AND user_locked = ?", ids, false).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("fetching batch books: %w", err)
	}
	byID := make(map[string]Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]Book, 0, len(books))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
		}
	}
	return ordered, nil
}

func terminalStatuses() []BookStatus {
	return []BookStatus{StatusSeriesFolder, StatusMultiBookFiles, StatusNeedsAttention}
}

// ApplyResult is one book's outcome after a layer/apply pass, ready to be
// committed as a single transaction.
type ApplyResult struct {
	Book         Book
	History      *HistoryEntry
	RemoveQueue  bool
	AdvanceLayer *int
}

// CommitBatch writes every result in the batch inside one transaction:
// update the book row, insert history (after deleting any conflicting
// pending_fix/fixed rows per the single-pending invariant), and remove the
// queue entry where the layer resolved the item.
func (r *Repository) CommitBatch(results []ApplyResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, res := range results {
			if err := r.commitOne(tx, res); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) commitOne(tx *gorm.DB, res ApplyResult) error {
	if res.History != nil && res.History.Status == HistoryFixed {
		if err := tx.Where("book_id = ? AND status IN ?", res.Book.ID,
			[]HistoryStatus{HistoryPendingFix, HistoryFixed}).
			Delete(&HistoryEntry{}).Error; err != nil {
			return fmt.Errorf("clearing prior history rows: %w", err)
		}
	}

	if res.AdvanceLayer != nil {
		res.Book.VerificationLayer = *res.AdvanceLayer
	}

	if err := tx.Save(&res.Book).Error; err != nil {
		return fmt.Errorf("saving book %s: %w", res.Book.ID, err)
	}

	if res.History != nil {
		if err := tx.Create(res.History).Error; err != nil {
			return fmt.Errorf("inserting history row: %w", err)
		}
	}

	if res.RemoveQueue {
		if err := tx.Where("book_id = ?", res.Book.ID).Delete(&QueueEntry{}).Error; err != nil {
			return fmt.Errorf("removing queue entry: %w", err)
		}
	}

	// books.path uniqueness: if the new path now collides with another
	// book row, the incoming row wins and the loser is merged away.
	var collisions []Book
	if err := tx.Where("path = ? AND id <> ?", res.Book.Path, res.Book.ID).Find(&collisions).Error; err != nil {
		return fmt.Errorf("checking path collisions: %w", err)
	}
	for _, loser := range collisions {
		if err := tx.Where("book_id = ?", loser.ID).Delete(&QueueEntry{}).Error; err != nil {
			return fmt.Errorf("removing queue entry for merged book %s: %w", loser.ID, err)
		}
		if err := tx.Delete(&loser).Error; err != nil {
			return fmt.Errorf("merging duplicate book row %s: %w", loser.ID, err)
		}
		logger.Get().Info().Str("winner", res.Book.ID).Str("loser", loser.ID).Str("path", res.Book.Path).Msg("merged duplicate book row on path conflict")
	}

	if err := tx.Save(&res.Book).Error; err != nil {
		return fmt.Errorf("saving book %s: %w", res.Book.ID, err)
	}

	return nil
}

// Enqueue inserts (or refreshes the priority/reason of) a queue entry for a
// book. A book may have at most one queue entry at a time.
func (r *Repository) Enqueue(bookID string, priority int, reason string) error {
	entry := QueueEntry{BookID: bookID, Priority: priority, Reason: reason, AddedAt: time.Now().UTC()}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"priority", "reason", "added_at"}),
	}).Create(&entry).Error
}

// UpsertBook inserts a new book row or updates the existing one at the same
// path.
func (r *Repository) UpsertBook(book *Book) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "media_type", "source_type", "updated_at"}),
	}).Create(book).Error
}

// GetBook loads a single book by ID.
func (r *Repository) GetBook(id string) (*Book, error) {
	var book Book
	if err := r.db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// HistoryForBook returns all history rows for a book, most recent first.
func (r *Repository) HistoryForBook(bookID string) ([]HistoryEntry, error) {
	var rows []HistoryEntry
	err := r.db.Where("book_id = ?", bookID).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// AdvanceStuckLayer moves every pending book sitting at verification layer
// from to layer to, and makes sure each one still has a queue entry so it
// gets picked up at its new layer. Used when a layer is disabled by
// configuration and would otherwise orphan items parked at it.
func (r *Repository) AdvanceStuckLayer(from, to int, reason string) (int, error) {
	var books []Book
	if err := r.db.Where("verification_layer = ? AND status = ?", from, StatusPending).Find(&books).Error; err != nil {
		return 0, fmt.Errorf("finding stuck books at layer %d: %w", from, err)
	}
	if len(books) == 0 {
		return 0, nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range books {
			if err := tx.Model(&Book{}).Where("id = ?", b.ID).Update("verification_layer", to).Error; err != nil {
				return fmt.Errorf("advancing book %s: %w", b.ID, err)
			}
			entry := QueueEntry{BookID: b.ID, Priority: 5, Reason: reason, AddedAt: time.Now().UTC()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
				return fmt.Errorf("ensuring queue entry for book %s: %w", b.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(books), nil
}

// CleanStuckQueue removes queue entries for books that already reached a
// terminal status (needs_attention, verified, fixed) and should not be
// reprocessed.
func (r *Repository) CleanStuckQueue() (int, error) {
	result := r.db.Where("book_id IN (?)", r.db.Model(&Book{}).
		Select("id").
		Where("status IN ?", []BookStatus{StatusNeedsAttention, StatusVerified, StatusFixed})).
		Delete(&QueueEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleaning stuck queue entries: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// QueueDepth returns the number of items currently queued.
func (r *Repository) QueueDepth() (int, error) {
	var count int64
	if err := r.db.Model(&QueueEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return int(count), nil
}

// PendingSLRequeues returns books whose profile carries a requeue_after that
// has already elapsed, ready for the SL requeue verification recheck.
func (r *Repository) PendingSLRequeues(asOf time.Time, limit int) ([]Book, error) {
	var books []Book
	if err := r.db.Where("status = ?", StatusPendingFix).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("loading pending_fix books: %w", err)
	}
	due := make([]Book, 0, len(books))
	for _, b := range books {
		if b.Profile.SLRequeue != nil && !b.Profile.SLRequeue.RequeueAfter.After(asOf) {
			due = append(due, b)
			if len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

// BumpDailyStats increments today's counters by the given deltas.
func (r *Repository) BumpDailyStats(day string, scanned, queued, fixed, verified, apiCalls int) error {
	stats := DailyStats{Day: day}
	return r.db.Transaction(func(tx *gorm.DB) error {
		tx.Where("day = ?", day).FirstOrCreate(&stats)
		stats.Scanned += scanned
		stats.Queued += queued
		stats.Fixed += fixed
		stats.Verified += verified
		stats.APICalls += apiCalls
		return tx.Save(&stats).Error
	})
}
