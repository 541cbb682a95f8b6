package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/drallgood/libraryd/internal/profile"
)

// BookStatus is the lifecycle state machine value for a Book row.
type BookStatus string

const (
	StatusPending        BookStatus = "pending"
	StatusVerified       BookStatus = "verified"
	StatusPendingFix     BookStatus = "pending_fix"
	StatusNeedsAttention BookStatus = "needs_attention"
	StatusError          BookStatus = "error"
	StatusDuplicate      BookStatus = "duplicate"
	StatusCorruptDest    BookStatus = "corrupt_dest"
	StatusSeriesFolder   BookStatus = "series_folder"
	StatusMultiBookFiles BookStatus = "multi_book_files"
	StatusFixed          BookStatus = "fixed"
)

// SourceType distinguishes books discovered under a configured library path
// from those discovered under the watch folder.
type SourceType string

const (
	SourceLibrary     SourceType = "library"
	SourceWatchFolder SourceType = "watch_folder"
)

// MediaType is the kind of media a book folder contains.
type MediaType string

const (
	MediaAudiobook MediaType = "audiobook"
	MediaEbook     MediaType = "ebook"
	MediaBoth      MediaType = "both"
)

// Book is one discovered filesystem item. Invariant: if UserLocked is true,
// no layer may mutate Author/Title/Profile. Invariant: VerificationLayer is
// monotonically non-decreasing while an item moves through processing
// (reset only on rescan).
type Book struct {
	ID                 string     `gorm:"primaryKey" json:"id"`
	Path               string     `gorm:"uniqueIndex;not null" json:"path"`
	Author             string     `json:"author"`
	Title              string     `json:"title"`
	Status             BookStatus `gorm:"index;not null;default:pending" json:"status"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	VerificationLayer  int        `gorm:"not null;default:0" json:"verification_layer"`
	Confidence         int        `gorm:"not null;default:0" json:"confidence"`
	Profile            profile.Profile `gorm:"serializer:json" json:"profile"`
	UserLocked         bool       `gorm:"not null;default:false" json:"user_locked"`
	SourceType         SourceType `gorm:"not null;default:library" json:"source_type"`
	MediaType          MediaType  `gorm:"not null;default:audiobook" json:"media_type"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a stable UUID identifier if one was not already set.
func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Terminal reports whether Status is one the layer engine must never touch
// again without a rescan.
func (b *Book) Terminal() bool {
	switch b.Status {
	case StatusSeriesFolder, StatusMultiBookFiles, StatusNeedsAttention:
		return true
	}
	return false
}

// QueueEntry is one (book, pending work unit). Invariant: a book may have at
// most one queue entry at any time; layers must delete the entry when they
// resolve, otherwise leave it and advance the book's VerificationLayer.
type QueueEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID    string    `gorm:"uniqueIndex;index:idx_queue_priority_added,priority:2;not null" json:"book_id"`
	Priority  int       `gorm:"index:idx_queue_priority_added,priority:1;not null;default:100" json:"priority"`
	Reason    string    `json:"reason"`
	AddedAt   time.Time `gorm:"index:idx_queue_priority_added,priority:3;not null" json:"added_at"`
}

func (q *QueueEntry) BeforeCreate(*gorm.DB) error {
	if q.AddedAt.IsZero() {
		q.AddedAt = time.Now().UTC()
	}
	return nil
}

// HistoryStatus is the lifecycle status of a proposed or applied change.
type HistoryStatus string

const (
	HistoryPendingFix     HistoryStatus = "pending_fix"
	HistoryFixed          HistoryStatus = "fixed"
	HistoryNeedsAttention HistoryStatus = "needs_attention"
	HistoryDuplicate      HistoryStatus = "duplicate"
	HistoryCorruptDest    HistoryStatus = "corrupt_dest"
	HistoryConflict       HistoryStatus = "conflict"
	HistoryError          HistoryStatus = "error"
)

// HistoryEntry is one proposed or applied change. Invariant: at most one
// pending_fix row per book at a time; when applied, existing
// pending_fix/fixed rows for that book are removed before inserting the new
// fixed row.
type HistoryEntry struct {
	ID            uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID        string        `gorm:"index:idx_history_book_status,priority:1;not null" json:"book_id"`
	OldAuthor     string        `json:"old_author"`
	OldTitle      string        `json:"old_title"`
	NewAuthor     string        `json:"new_author"`
	NewTitle      string        `json:"new_title"`
	NewNarrator   string        `json:"new_narrator,omitempty"`
	NewSeries     string        `json:"new_series,omitempty"`
	NewSeriesNum  string        `json:"new_series_num,omitempty"`
	NewYear       string        `json:"new_year,omitempty"`
	NewEdition    string        `json:"new_edition,omitempty"`
	NewVariant    string        `json:"new_variant,omitempty"`
	OldPath       string        `json:"old_path"`
	NewPath       string        `json:"new_path"`
	Status        HistoryStatus `gorm:"index:idx_history_book_status,priority:2;not null" json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	EmbedStatus   string        `json:"embed_status,omitempty"`
	EmbedError    string        `json:"embed_error,omitempty"`
	HookStatus    string        `json:"hook_status,omitempty"`
	HookError     string        `json:"hook_error,omitempty"`
	FixedAt       *time.Time    `json:"fixed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// DailyStats is one row per calendar day, used only for reporting.
type DailyStats struct {
	Day       string `gorm:"primaryKey" json:"day"` // YYYY-MM-DD
	Scanned   int    `json:"scanned"`
	Queued    int    `json:"queued"`
	Fixed     int    `json:"fixed"`
	Verified  int    `json:"verified"`
	APICalls  int    `json:"api_calls"`
}
