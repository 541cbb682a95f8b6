package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusStartBatchResetsProcessedAndErrors(t *testing.T) {
	s := &Status{Processed: 7, Errors: []string{"stale"}}
	s.startBatch(12)

	snap := s.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, 12, snap.Total)
	assert.Equal(t, 0, snap.Processed)
	assert.Empty(t, snap.Errors)
}

func TestStatusAddProcessedAccumulates(t *testing.T) {
	s := &Status{}
	s.startBatch(10)
	s.addProcessed(3)
	s.addProcessed(4)

	assert.Equal(t, 7, s.Snapshot().Processed)
}

func TestStatusRecordErrorAppends(t *testing.T) {
	s := &Status{}
	s.recordError("boom")
	s.recordError("boom again")

	snap := s.Snapshot()
	assert.Equal(t, []string{"boom", "boom again"}, snap.Errors)
}

func TestStatusFinishClearsActiveAndCurrentBook(t *testing.T) {
	s := &Status{}
	s.startBatch(5)
	s.setLayer(2, "Layer 2: API Database Lookup")
	s.setCurrentBook("Author", "Title")
	s.finish()

	snap := s.Snapshot()
	assert.False(t, snap.Active)
	assert.Equal(t, 0, snap.Layer)
	assert.Equal(t, "idle", snap.LayerName)
	assert.Empty(t, snap.CurrentBook)
	assert.Empty(t, snap.CurrentAuthor)
}

func TestStatusSnapshotIsIndependentOfFutureMutation(t *testing.T) {
	s := &Status{}
	s.recordError("first")
	snap := s.Snapshot()

	s.recordError("second")

	assert.Equal(t, []string{"first"}, snap.Errors)
	assert.Equal(t, []string{"first", "second"}, s.Snapshot().Errors)
}
