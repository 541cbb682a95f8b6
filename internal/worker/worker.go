// Package worker drives the scheduler loop that repeatedly scans libraries,
// walks every book through the five verification layers in a fixed order,
// and clamps API call volume to the configured hourly rate, grounded on the
// teacher's periodic-sync loop and the distilled worker.py orchestration.
package worker

import (
	"context"
	"time"

	"github.com/drallgood/libraryd/internal/config"
	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/layers"
	"github.com/drallgood/libraryd/internal/logger"
)

// Scanner discovers new or changed books under the configured library
// and watch-folder paths and enqueues them at layer 1.
type Scanner interface {
	ScanLibrary(ctx context.Context, cfg *config.Config) error
}

// WatchScanner discovers new books dropped into the watch folder.
type WatchScanner interface {
	ScanWatchFolder(ctx context.Context, cfg *config.Config) error
}

// Worker owns the repository, layer engine, and shared status record that
// together drive one processing cycle.
type Worker struct {
	Repo        *database.Repository
	Engine      *layers.Engine
	SLRequeue   *layers.SLRequeueVerifier
	Scanner     Scanner
	WatchScan   WatchScanner
	LoadConfig  func() *config.Config
	Status      *Status
	Metrics     *Metrics
	BatchSize   int
}

const defaultBatchSize = 20

func (w *Worker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return defaultBatchSize
}

// batchDelay implements the §/worker.py rate-limit clamp: hourly requests
// clamped to [10, 500], delay = max(2, 3600/rph) seconds between batches.
func batchDelay(maxRequestsPerHour int) time.Duration {
	rph := maxRequestsPerHour
	if rph < 10 {
		rph = 10
	}
	if rph > 500 {
		rph = 500
	}
	seconds := 3600 / rph
	if seconds < 2 {
		seconds = 2
	}
	return time.Duration(seconds) * time.Second
}

// runLayerToExhaustion repeatedly runs one layer's batch cycle until a
// batch processes nothing, pacing itself with delay between batches.
func (w *Worker) runLayerToExhaustion(ctx context.Context, layer layers.Layer, delay time.Duration) (processed, resolved int) {
	log := logger.Get()
	w.Status.setLayer(layer.Number(), layer.Name())
	if w.Metrics != nil {
		w.Metrics.CurrentLayer.Set(float64(layer.Number()))
	}

	for {
		select {
		case <-ctx.Done():
			return processed, resolved
		default:
		}

		start := time.Now()
		p, r, err := w.Engine.RunLayer(ctx, layer, w.batchSize())
		if w.Metrics != nil {
			w.Metrics.BatchDuration.WithLabelValues(layer.Name()).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			log.Error().Err(err).Str("layer", layer.Name()).Msg("layer batch failed")
			w.Status.recordError(err.Error())
			return processed, resolved
		}
		if p == 0 {
			return processed, resolved
		}

		processed += p
		resolved += r
		w.Status.addProcessed(p)
		if w.Metrics != nil {
			w.Metrics.Processed.WithLabelValues(layer.Name()).Add(float64(p))
			w.Metrics.Resolved.WithLabelValues(layer.Name()).Add(float64(r))
		}

		select {
		case <-ctx.Done():
			return processed, resolved
		case <-time.After(delay):
		}
	}
}

// runSLRequeueCheck re-verifies books whose primary-service requeue window
// has elapsed, sitting between Layer 2 and Layer 3 in the fixed processing
// order (worker.py's "SL REQUEUE CHECK (Phase 5)").
func (w *Worker) runSLRequeueCheck(ctx context.Context) (processed, upgraded int) {
	if w.SLRequeue == nil {
		return 0, 0
	}
	due, err := w.Repo.PendingSLRequeues(time.Now().UTC(), w.batchSize())
	if err != nil || len(due) == 0 {
		return 0, 0
	}

	results := make([]database.ApplyResult, 0, len(due))
	for i := range due {
		book := &due[i]
		result := w.SLRequeue.Process(ctx, book)
		processed++
		if result.Action == layers.ActionResolved {
			upgraded++
		}
		if applied := layers.ToApplyResult(book, book.VerificationLayer, result); applied != nil {
			results = append(results, *applied)
		}
	}
	_ = w.Repo.CommitBatch(results)
	return processed, upgraded
}

// ProcessQueue runs one full pass over the queue in the fixed layer order:
// Layer 1 (audio ID) -> Layer 2 (API, or advance stuck items to 4 when
// disabled) -> SL requeue check -> Layer 3 (AI verify) -> Layer 4 (audio
// credits) -> Layer 5 (content analysis, last resort).
func (w *Worker) ProcessQueue(ctx context.Context) (totalProcessed, totalResolved int) {
	cfg := w.LoadConfig()
	delay := batchDelay(cfg.MaxRequestsPerHour)

	depth, _ := w.Repo.QueueDepth()
	if depth == 0 {
		return 0, 0
	}

	cleaned, _ := w.Repo.CleanStuckQueue()
	log := logger.Get()
	if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned stuck queue entries")
	}

	w.Status.startBatch(depth)
	defer w.Status.finish()

	if layer1, ok := w.Engine.Layer(1); ok {
		p, r := w.runLayerToExhaustion(ctx, layer1, 2*time.Second)
		totalProcessed += p
		totalResolved += r
	}

	if layer2, ok := w.Engine.Layer(2); ok && layer2.Enabled() {
		p, r := w.runLayerToExhaustion(ctx, layer2, 500*time.Millisecond)
		totalProcessed += p
		totalResolved += r
	} else if n, err := w.Repo.AdvanceStuckLayer(2, 4, "layer2_disabled"); err == nil && n > 0 {
		log.Info().Int("count", n).Msg("layer 2 disabled, advanced stuck items to layer 4")
	}

	if p, u := w.runSLRequeueCheck(ctx); p > 0 {
		log.Info().Int("processed", p).Int("upgraded", u).Msg("SL requeue check complete")
		totalProcessed += p
		totalResolved += u
	}

	if layer3, ok := w.Engine.Layer(3); ok {
		p, r := w.runLayerToExhaustion(ctx, layer3, 500*time.Millisecond)
		totalProcessed += p
		totalResolved += r
	}

	if layer4, ok := w.Engine.Layer(4); ok {
		p, r := w.runLayerToExhaustion(ctx, layer4, delay)
		totalProcessed += p
		totalResolved += r
	}

	if layer5, ok := w.Engine.Layer(5); ok {
		p, r := w.runLayerToExhaustion(ctx, layer5, delay)
		totalProcessed += p
		totalResolved += r
	}

	log.Info().Int("processed", totalProcessed).Int("resolved", totalResolved).Msg("processing cycle complete")
	return totalProcessed, totalResolved
}

// Run is the main scheduler loop: scan, process, sleep for
// scan_interval_hours, repeat until ctx is canceled. Checked for
// cancellation every 10s while sleeping, mirroring worker.py's
// background_worker sleep loop.
func (w *Worker) Run(ctx context.Context) {
	log := logger.Get()
	log.Info().Msg("background worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("background worker stopped")
			return
		default:
		}

		cfg := w.LoadConfig()
		if w.Metrics != nil {
			w.Metrics.Active.Set(1)
		}
		if w.Scanner != nil {
			if err := w.Scanner.ScanLibrary(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("library scan failed")
			}
		}
		w.ProcessQueue(ctx)
		if w.Metrics != nil {
			w.Metrics.Active.Set(0)
		}

		interval := time.Duration(cfg.ScanIntervalHours * float64(time.Hour))
		if interval <= 0 {
			interval = 6 * time.Hour
		}
		if !sleepInterruptible(ctx, interval) {
			log.Info().Msg("background worker stopped")
			return
		}
	}
}

// RunWatchFolder is the watch-folder poller: on a shorter interval, check
// for newly dropped files, independent of the main scan/process cycle.
func (w *Worker) RunWatchFolder(ctx context.Context) {
	log := logger.Get()
	if w.WatchScan == nil {
		return
	}
	log.Info().Msg("watch folder worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watch folder worker stopped")
			return
		default:
		}

		cfg := w.LoadConfig()
		if cfg.WatchFolder != "" {
			if err := w.WatchScan.ScanWatchFolder(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("watch folder scan failed")
			}
		}

		interval := time.Duration(cfg.WatchIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 60 * time.Second
		}
		if !sleepInterruptible(ctx, interval) {
			log.Info().Msg("watch folder worker stopped")
			return
		}
	}
}

// sleepInterruptible sleeps for d, checking ctx cancellation every 10s so a
// shutdown signal is honored promptly even during a long scan interval.
// Returns false if ctx was canceled before d elapsed.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	tick := 10 * time.Second
	remaining := d
	for remaining > 0 {
		step := tick
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
		remaining -= step
	}
	return true
}
