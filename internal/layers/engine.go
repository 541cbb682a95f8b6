package layers

import (
	"context"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/logger"
)

// Layer is one stage of the identification pipeline, grounded on the
// Python pipeline's ProcessingLayer base class: fetch eligible items,
// process each, apply the result.
type Layer interface {
	Number() int
	Name() string
	Enabled() bool
	CanProcess(book *database.Book) bool
	Process(ctx context.Context, book *database.Book) Result
}

// Engine owns the repository and the set of registered layers, and drives
// one batch cycle per layer via RunLayer.
type Engine struct {
	repo   *database.Repository
	layers map[int]Layer
}

// NewEngine builds an Engine from a repository and the complete set of
// layers it will drive.
func NewEngine(repo *database.Repository, ls ...Layer) *Engine {
	m := make(map[int]Layer, len(ls))
	for _, l := range ls {
		m[l.Number()] = l
	}
	return &Engine{repo: repo, layers: m}
}

// Layer returns the registered layer for number, if any.
func (e *Engine) Layer(number int) (Layer, bool) {
	l, ok := e.layers[number]
	return l, ok
}

// RunLayer implements the 3-phase batch/DB discipline: fetch a detached
// batch, run every item's external work with no transaction held, then
// commit every outcome in a single transaction.
func (e *Engine) RunLayer(ctx context.Context, layer Layer, limit int) (processed, resolved int, err error) {
	if !layer.Enabled() {
		return 0, 0, nil
	}

	batch, err := e.repo.FetchBatch(layer.Number(), limit)
	if err != nil {
		return 0, 0, err
	}
	if len(batch) == 0 {
		return 0, 0, nil
	}

	log := logger.Get()
	log.Info().Str("layer", layer.Name()).Int("count", len(batch)).Msg("processing batch")

	results := make([]database.ApplyResult, 0, len(batch))
	for i := range batch {
		book := &batch[i]
		if !layer.CanProcess(book) {
			continue
		}

		result := layer.Process(ctx, book)
		processed++
		if result.Action == ActionResolved {
			resolved++
		}

		if applied := toApplyResult(book, layer.Number(), result); applied != nil {
			results = append(results, *applied)
		}
	}

	if err := e.repo.CommitBatch(results); err != nil {
		return processed, resolved, err
	}
	log.Info().Str("layer", layer.Name()).Int("processed", processed).Int("resolved", resolved).Msg("batch complete")
	return processed, resolved, nil
}

// ToApplyResult exposes the Result -> database.ApplyResult translation for
// callers outside the numbered-layer batch cycle, namely the worker's SL
// requeue recheck.
func ToApplyResult(book *database.Book, layerNumber int, result Result) *database.ApplyResult {
	return toApplyResult(book, layerNumber, result)
}

func toApplyResult(book *database.Book, layerNumber int, result Result) *database.ApplyResult {
	switch result.Action {
	case ActionResolved:
		if result.Verified {
			book.Status = database.StatusVerified
		} else {
			book.Status = database.StatusPendingFix
		}
		book.VerificationLayer = layerNumber
		book.Confidence = result.Confidence
		return &database.ApplyResult{Book: *book, History: result.History, RemoveQueue: true}

	case ActionAdvance:
		next := layerNumber + 1
		if result.NextLayer != nil {
			next = *result.NextLayer
		}
		return &database.ApplyResult{Book: *book, History: result.History, AdvanceLayer: &next}

	case ActionError:
		book.Status = database.StatusError
		if result.Err != nil {
			book.ErrorMessage = result.Err.Error()
		}
		return &database.ApplyResult{Book: *book, History: result.History}

	case ActionTerminal:
		book.Status = result.TerminalStatus
		if book.Status == "" {
			book.Status = database.StatusNeedsAttention
		}
		book.ErrorMessage = result.Message
		return &database.ApplyResult{Book: *book, History: result.History, RemoveQueue: true}

	default: // Skip, Retry
		if result.History != nil {
			return &database.ApplyResult{Book: *book, History: result.History}
		}
		return nil
	}
}
