package worker

import (
	"sync"
	"time"
)

// Status is the shared processing-status record other components (a future
// admin surface, tests) can read concurrently with the worker loop mutating
// it, grounded on worker.py's module-level _processing_status dict.
type Status struct {
	mu sync.Mutex

	Active           bool
	Processed        int
	Total            int
	Layer            int
	LayerName        string
	QueueRemaining   int
	CurrentBook      string
	CurrentAuthor    string
	CurrentStep      string
	LastActivity     string
	LastActivityTime time.Time
	Errors           []string
}

// Snapshot returns a copy safe to read without holding the worker's lock.
func (s *Status) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.Errors = append([]string(nil), s.Errors...)
	return cp
}

func (s *Status) startBatch(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Active = true
	s.Total = total
	s.Processed = 0
	s.Errors = nil
	s.activity("starting processing of queued items")
}

func (s *Status) setLayer(layer int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Layer = layer
	s.LayerName = name
	s.activity(name)
}

func (s *Status) addProcessed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed += n
}

func (s *Status) setQueueRemaining(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueueRemaining = n
}

func (s *Status) setCurrentBook(author, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentAuthor = author
	s.CurrentBook = title
	s.LastActivityTime = time.Now().UTC()
}

func (s *Status) recordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, msg)
}

func (s *Status) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Active = false
	s.Layer = 0
	s.LayerName = "idle"
	s.CurrentBook = ""
	s.CurrentAuthor = ""
	s.QueueRemaining = 0
	s.activity("processing complete")
}

// activity must be called with mu already held.
func (s *Status) activity(msg string) {
	s.LastActivity = msg
	s.LastActivityTime = time.Now().UTC()
}
