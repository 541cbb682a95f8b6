package layers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/drallgood/libraryd/internal/cache"
	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/profile"
	"github.com/drallgood/libraryd/internal/providers"
)

// providerSource maps a provider name to the profile.Source it
// contributes evidence as.
var providerSource = map[string]profile.Source{
	"primary":     profile.SourceBookDB,
	"audnexus":    profile.SourceAudnexus,
	"googlebooks": profile.SourceGoogleBook,
	"openlibrary": profile.SourceOpenLib,
	"hardcover":   profile.SourceHardcover,
}

// SLTrustMode selects how much weight a near-threshold API match gets
// before deciding whether AI verification (Layer 3) is still needed.
type SLTrustMode string

const (
	SLTrustFull   SLTrustMode = "full"
	SLTrustBoost  SLTrustMode = "boost"
	SLTrustLegacy SLTrustMode = "legacy"
)

// APILayer is Layer 2: fan out a metadata search across the configured
// provider chain, vote on the winning candidate, and decide whether the
// match is strong enough to skip straight to Layer 4 or still needs AI
// verification (spec.md §4.3 Layer 2).
type APILayer struct {
	EnabledFlag         bool
	Providers           []providers.MetadataProvider
	Cache               cache.Cache[string, []providers.Candidate]
	ConfidenceThreshold int
	SLTrustMode         SLTrustMode
}

const defaultProfileConfidenceThreshold = 85

func (l *APILayer) Number() int  { return 2 }
func (l *APILayer) Name() string { return "Layer 2: API Database Lookup" }
func (l *APILayer) Enabled() bool {
	return l.EnabledFlag
}

func (l *APILayer) CanProcess(book *database.Book) bool {
	if book.UserLocked || book.Terminal() {
		return false
	}
	return book.VerificationLayer == 2
}

func cacheKey(q providers.Query) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToLower(q.Author), strings.ToLower(q.Title), q.ISBN)
}

// gather fans candidate searches out across every configured provider
// concurrently via errgroup (one goroutine per provider), and caches the combined result by
// query so repeat lookups within a run skip the network entirely.
func (l *APILayer) gather(ctx context.Context, q providers.Query) []providers.Candidate {
	key := cacheKey(q)
	if l.Cache != nil {
		if cached, ok := l.Cache.Get(key); ok {
			return cached
		}
	}

	results := make([][]providers.Candidate, len(l.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range l.Providers {
		i, p := i, p
		g.Go(func() error {
			candidates, err := p.Search(gctx, q)
			if err != nil {
				// A single provider failing should not abort the others;
				// the breaker/limiter already recorded the failure.
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var all []providers.Candidate
	for _, candidates := range results {
		all = append(all, candidates...)
	}
	if l.Cache != nil {
		l.Cache.Set(key, all, 0)
	}
	return all
}

func (l *APILayer) threshold() int {
	if l.ConfidenceThreshold > 0 {
		return l.ConfidenceThreshold
	}
	return defaultProfileConfidenceThreshold
}

// stopWords are excluded from Jaccard similarity per §4.3's "3+-character
// tokens, minus stop words".
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "or": true,
	"in": true, "to": true, "for": true, "by": true, "part": true,
	"book": true, "volume": true,
}

func tokensFor(s string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,!?()[]{}\"'-:")
		if len(word) >= 3 && !stopWords[word] {
			set[word] = true
		}
	}
	return set
}

// jaccardSimilarity computes the Jaccard index between the token sets of a
// and b (spec.md §4.3: "Jaccard over 3+-character tokens, minus stop
// words").
func jaccardSimilarity(a, b string) float64 {
	setA, setB := tokensFor(a), tokensFor(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA)
	for tok := range setB {
		if !setA[tok] {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// pickWinner implements §4.3's candidate vote: majority by normalized
// author, falling back to the candidate matching the book's current
// author, falling back to the first candidate.
func pickWinner(candidates []providers.Candidate, currentAuthor string) providers.Candidate {
	authorVotes := map[string]int{}
	for _, c := range candidates {
		authorVotes[strings.ToLower(strings.TrimSpace(c.Author))]++
	}
	bestAuthor, bestCount := "", 0
	for author, count := range authorVotes {
		if count > bestCount {
			bestAuthor, bestCount = author, count
		}
	}
	if bestCount > 1 {
		for _, c := range candidates {
			if strings.EqualFold(c.Author, bestAuthor) {
				return c
			}
		}
	}
	if currentAuthor != "" {
		for _, c := range candidates {
			if strings.EqualFold(c.Author, currentAuthor) {
				return c
			}
		}
	}
	return candidates[0]
}

func (l *APILayer) nextLayerForLowConfidence() int {
	switch l.SLTrustMode {
	case SLTrustFull:
		return 4
	default:
		return 3
	}
}

func (l *APILayer) Process(ctx context.Context, book *database.Book) Result {
	if len(l.Providers) == 0 {
		// No API providers configured: advance straight to Layer 4 per
		// §4.3 ("if enabled, else advance layer-2 items to 4").
		return Result{Action: ActionAdvance, NextLayer: intPtr(4), Message: "no API providers configured"}
	}

	q := providers.Query{Author: book.Author, Title: book.Title}
	if q.Author == "" && q.Title == "" {
		q.Title = book.Path
	}

	candidates := l.gather(ctx, q)
	if len(candidates) == 0 {
		next := l.nextLayerForLowConfidence()
		return Result{Action: ActionAdvance, NextLayer: &next, Message: "no API candidates found"}
	}

	winner := pickWinner(candidates, book.Author)
	authorSim := jaccardSimilarity(book.Author, winner.Author)
	titleSim := jaccardSimilarity(book.Title, winner.Title)
	avg := (authorSim + titleSim) / 2 * 100

	p := book.Profile
	source, ok := providerSource[winner.Provider]
	if !ok {
		source = profile.SourceAI
	}
	if winner.Author != "" {
		p.AddAuthor(source, winner.Author)
	}
	if winner.Title != "" {
		p.AddTitle(source, winner.Title)
	}
	if winner.Narrator != "" {
		p.Add(profile.FieldNarrator, source, winner.Narrator)
	}
	if winner.Series != "" {
		p.Add(profile.FieldSeries, source, winner.Series)
	}
	if winner.SeriesNum != "" {
		p.Add(profile.FieldSeriesNum, source, winner.SeriesNum)
	}
	if winner.Year != "" {
		p.Add(profile.FieldYear, source, winner.Year)
	}
	if winner.Language != "" {
		p.Add(profile.FieldLanguage, source, winner.Language)
	}
	p.UsedLayer(l.Number())
	p.Finalize()
	book.Profile = p

	if authorSim >= 0.90 && titleSim >= 0.90 {
		return Result{Action: ActionResolved, Confidence: p.OverallConfidence,
			Message: "API candidate matches current metadata", Verified: true}
	}

	history := &database.HistoryEntry{
		BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
		NewAuthor: p.Author.Value, NewTitle: p.Title.Value,
		NewNarrator: p.Narrator.Value, NewSeries: p.Series.Value, NewSeriesNum: p.SeriesNum.Value,
		NewYear: p.Year.Value, OldPath: book.Path, Status: database.HistoryPendingFix,
	}

	if avg >= float64(l.threshold()) {
		switch l.SLTrustMode {
		case SLTrustFull:
			return Result{Action: ActionAdvance, Confidence: p.OverallConfidence, NextLayer: intPtr(4),
				Message: "API match cleared threshold, trust mode full skips AI"}
		case SLTrustBoost:
			if avg >= 70 {
				return Result{Action: ActionResolved, Confidence: p.OverallConfidence,
					Message: "API match cleared threshold, trust mode boost skips AI", History: history}
			}
			return Result{Action: ActionAdvance, NextLayer: intPtr(3), Confidence: p.OverallConfidence,
				Message: "API match cleared threshold, trust mode boost still routes to AI"}
		default: // legacy
			return Result{Action: ActionAdvance, NextLayer: intPtr(3), Confidence: p.OverallConfidence,
				Message: "API match cleared threshold, trust mode legacy routes to AI"}
		}
	}

	next := l.nextLayerForLowConfidence()
	return Result{Action: ActionAdvance, NextLayer: &next, Confidence: p.OverallConfidence,
		Message: "API candidates gathered, confidence below threshold"}
}
