package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/drallgood/libraryd/internal/profile"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Book{}, &QueueEntry{}, &HistoryEntry{}, &DailyStats{}))
	return db
}

func TestFetchBatchOrdersByPriorityThenAddedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	b1 := Book{Path: "/lib/a", Status: StatusPending, VerificationLayer: 1}
	b2 := Book{Path: "/lib/b", Status: StatusPending, VerificationLayer: 1}
	require.NoError(t, db.Create(&b1).Error)
	require.NoError(t, db.Create(&b2).Error)

	require.NoError(t, repo.Enqueue(b1.ID, 200, "scan"))
	time.Sleep(time.Millisecond)
	require.NoError(t, repo.Enqueue(b2.ID, 100, "scan"))

	batch, err := repo.FetchBatch(1, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, b2.ID, batch[0].ID)
	assert.Equal(t, b1.ID, batch[1].ID)
}

func TestFetchBatchExcludesUserLockedAndTerminal(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	locked := Book{Path: "/lib/locked", Status: StatusPending, VerificationLayer: 1, UserLocked: true}
	terminal := Book{Path: "/lib/terminal", Status: StatusNeedsAttention, VerificationLayer: 1}
	eligible := Book{Path: "/lib/eligible", Status: StatusPending, VerificationLayer: 1}
	require.NoError(t, db.Create(&locked).Error)
	require.NoError(t, db.Create(&terminal).Error)
	require.NoError(t, db.Create(&eligible).Error)
	require.NoError(t, repo.Enqueue(locked.ID, 100, "scan"))
	require.NoError(t, repo.Enqueue(terminal.ID, 100, "scan"))
	require.NoError(t, repo.Enqueue(eligible.ID, 100, "scan"))

	batch, err := repo.FetchBatch(1, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, eligible.ID, batch[0].ID)
}

func TestCommitBatchDeletesPriorPendingFixBeforeInsertingFixed(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	book := Book{Path: "/lib/book", Status: StatusPendingFix, VerificationLayer: 3}
	require.NoError(t, db.Create(&book).Error)
	require.NoError(t, db.Create(&HistoryEntry{BookID: book.ID, Status: HistoryPendingFix}).Error)

	book.Status = StatusFixed
	book.Path = "/lib/book - renamed"
	err := repo.CommitBatch([]ApplyResult{{
		Book:        book,
		History:     &HistoryEntry{BookID: book.ID, Status: HistoryFixed, NewPath: book.Path},
		RemoveQueue: true,
	}})
	require.NoError(t, err)

	var rows []HistoryEntry
	require.NoError(t, db.Where("book_id = ?", book.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, HistoryFixed, rows[0].Status)
}

func TestCommitBatchMergesOnPathConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	winner := Book{Path: "/lib/winner", Status: StatusPending, VerificationLayer: 1}
	loser := Book{Path: "/lib/loser", Status: StatusPending, VerificationLayer: 1}
	require.NoError(t, db.Create(&winner).Error)
	require.NoError(t, db.Create(&loser).Error)
	require.NoError(t, repo.Enqueue(loser.ID, 100, "scan"))

	winner.Path = loser.Path
	err := repo.CommitBatch([]ApplyResult{{Book: winner}})
	require.NoError(t, err)

	var remaining []Book
	require.NoError(t, db.Where("path = ?", loser.Path).Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, winner.ID, remaining[0].ID)

	var queueCount int64
	db.Model(&QueueEntry{}).Where("book_id = ?", loser.ID).Count(&queueCount)
	assert.Zero(t, queueCount)
}

func TestEnqueueUpsertsOnConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	book := Book{Path: "/lib/book", Status: StatusPending, VerificationLayer: 1}
	require.NoError(t, db.Create(&book).Error)

	require.NoError(t, repo.Enqueue(book.ID, 100, "scan"))
	require.NoError(t, repo.Enqueue(book.ID, 50, "rescan"))

	var entries []QueueEntry
	require.NoError(t, db.Where("book_id = ?", book.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, 50, entries[0].Priority)
	assert.Equal(t, "rescan", entries[0].Reason)
}

func TestAdvanceStuckLayerMovesPendingBooksAndEnsuresQueueEntry(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	stuck := Book{Path: "/lib/stuck", Status: StatusPending, VerificationLayer: 2}
	other := Book{Path: "/lib/other", Status: StatusPending, VerificationLayer: 3}
	require.NoError(t, db.Create(&stuck).Error)
	require.NoError(t, db.Create(&other).Error)

	n, err := repo.AdvanceStuckLayer(2, 4, "layer2_disabled")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var reloaded Book
	require.NoError(t, db.First(&reloaded, "id = ?", stuck.ID).Error)
	assert.Equal(t, 4, reloaded.VerificationLayer)

	var entries []QueueEntry
	require.NoError(t, db.Where("book_id = ?", stuck.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "layer2_disabled", entries[0].Reason)

	var untouched Book
	require.NoError(t, db.First(&untouched, "id = ?", other.ID).Error)
	assert.Equal(t, 3, untouched.VerificationLayer)
}

func TestAdvanceStuckLayerLeavesQueueEntryAloneWhenAlreadyPresent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	stuck := Book{Path: "/lib/stuck", Status: StatusPending, VerificationLayer: 2}
	require.NoError(t, db.Create(&stuck).Error)
	require.NoError(t, repo.Enqueue(stuck.ID, 1, "scan"))

	_, err := repo.AdvanceStuckLayer(2, 4, "layer2_disabled")
	require.NoError(t, err)

	var entries []QueueEntry
	require.NoError(t, db.Where("book_id = ?", stuck.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "scan", entries[0].Reason)
}

func TestCleanStuckQueueRemovesTerminalEntriesOnly(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	done := Book{Path: "/lib/done", Status: StatusVerified, VerificationLayer: 2}
	active := Book{Path: "/lib/active", Status: StatusPending, VerificationLayer: 1}
	require.NoError(t, db.Create(&done).Error)
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, repo.Enqueue(done.ID, 1, "stale"))
	require.NoError(t, repo.Enqueue(active.ID, 1, "scan"))

	n, err := repo.CleanStuckQueue()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	depth, err := repo.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestQueueDepthCountsAllEntries(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	a := Book{Path: "/lib/a", Status: StatusPending, VerificationLayer: 1}
	b := Book{Path: "/lib/b", Status: StatusPending, VerificationLayer: 1}
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)
	require.NoError(t, repo.Enqueue(a.ID, 1, "scan"))
	require.NoError(t, repo.Enqueue(b.ID, 1, "scan"))

	depth, err := repo.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestPendingSLRequeuesFiltersByElapsedWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	due := Book{Path: "/lib/due", Status: StatusPendingFix}
	due.Profile.SLRequeue = &profile.SLRequeue{RequeueAfter: now.Add(-time.Hour)}
	notYet := Book{Path: "/lib/not-yet", Status: StatusPendingFix}
	notYet.Profile.SLRequeue = &profile.SLRequeue{RequeueAfter: now.Add(time.Hour)}
	noRequeue := Book{Path: "/lib/none", Status: StatusPendingFix}

	require.NoError(t, db.Create(&due).Error)
	require.NoError(t, db.Create(&notYet).Error)
	require.NoError(t, db.Create(&noRequeue).Error)

	books, err := repo.PendingSLRequeues(now, 10)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, due.ID, books[0].ID)
}

func TestBumpDailyStatsAccumulates(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.BumpDailyStats("2026-07-31", 5, 2, 1, 0, 3))
	require.NoError(t, repo.BumpDailyStats("2026-07-31", 1, 0, 0, 1, 2))

	var stats DailyStats
	require.NoError(t, db.First(&stats, "day = ?", "2026-07-31").Error)
	assert.Equal(t, 6, stats.Scanned)
	assert.Equal(t, 1, stats.Fixed)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 5, stats.APICalls)
}
