package layers

import (
	"context"
	"strings"
	"time"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/profile"
	"github.com/drallgood/libraryd/internal/providers"
)

// ClipExtractor locates and reads the opening seconds of a book's first
// audio file by natural sort order, isolated behind an interface so layers
// never touch the filesystem directly in tests.
type ClipExtractor interface {
	FirstClip(ctx context.Context, bookPath string, seconds int) ([]byte, error)
	// MiddleClip returns a clip starting percentIn% into the book's total
	// runtime (or at offsetCap, whichever is smaller), used by Layer 5's
	// last-resort content analysis.
	MiddleClip(ctx context.Context, bookPath string, percentIn int, offsetCap time.Duration, clipSeconds int) ([]byte, error)
}

// Transcriber turns an audio clip into text, used by Layer 1's local
// fallback path when the primary identification service is unavailable.
type Transcriber interface {
	Transcribe(ctx context.Context, clip []byte) (string, error)
}

// AudioIDLayer is Layer 1: identify a book from its opening audio, either
// via the primary service's fair-queue audio-ID endpoint or, on failure,
// by local transcription handed to a text-AI provider (spec.md §4.3 Layer
// 1).
type AudioIDLayer struct {
	EnabledFlag   bool
	ClipSeconds   int
	Clips         ClipExtractor
	Identifier    providers.AudioIdentifier
	Transcriber   Transcriber
	TextAI        providers.TextAIProvider
}

const defaultClipSeconds = 90

func (l *AudioIDLayer) Number() int  { return 1 }
func (l *AudioIDLayer) Name() string { return "Layer 1: Audio Identification" }
func (l *AudioIDLayer) Enabled() bool {
	return l.EnabledFlag
}

func (l *AudioIDLayer) CanProcess(book *database.Book) bool {
	if book.UserLocked || book.Terminal() {
		return false
	}
	return book.VerificationLayer == 0 || book.VerificationLayer == 1
}

func (l *AudioIDLayer) clipSeconds() int {
	if l.ClipSeconds > 0 {
		return l.ClipSeconds
	}
	return defaultClipSeconds
}

// folderHint extracts an (author, title)-ish search hint from the current
// path when no metadata has been gathered yet.
func folderHint(book *database.Book) string {
	if book.Author != "" && book.Title != "" {
		return book.Author + " - " + book.Title
	}
	if book.Title != "" {
		return book.Title
	}
	return book.Path
}

// tokenOverlap reports whether hint and candidate share at least one
// normalized word, per §4.3's "validate against the folder hint (token
// overlap)" rule.
func tokenOverlap(hint, candidate string) bool {
	hintTokens := tokenSet(hint)
	for tok := range tokenSet(candidate) {
		if hintTokens[tok] {
			return true
		}
	}
	return len(hintTokens) == 0
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,!?()[]{}\"'")
		if len(word) >= 3 {
			set[word] = true
		}
	}
	return set
}

func (l *AudioIDLayer) Process(ctx context.Context, book *database.Book) Result {
	if l.Clips == nil || l.Identifier == nil {
		return Result{Action: ActionAdvance, Message: "audio identification unavailable"}
	}

	clip, err := l.Clips.FirstClip(ctx, book.Path, l.clipSeconds())
	if err != nil {
		return Result{Action: ActionAdvance, Message: "no audio file available: " + err.Error()}
	}

	hint := folderHint(book)
	idResult, err := l.Identifier.IdentifyAudio(ctx, clip, hint)
	if err != nil {
		if pipeerr.CategoryOf(err) == pipeerr.QuotaExhausted {
			return Result{Action: ActionRetry, Err: err, Message: "primary service quota exhausted"}
		}
		return l.fallbackTranscribe(ctx, book, clip, hint)
	}

	if !tokenOverlap(hint, idResult.Author+" "+idResult.Title) {
		// No meaningful overlap with the folder hint: reject and advance
		// to Layer 2 for API-based identification instead.
		return Result{Action: ActionAdvance, Message: "audio ID result had no overlap with folder hint"}
	}

	return l.applyIdentification(book, idResult)
}

func (l *AudioIDLayer) fallbackTranscribe(ctx context.Context, book *database.Book, clip []byte, hint string) Result {
	if l.Transcriber == nil || l.TextAI == nil {
		return Result{Action: ActionAdvance, Message: "audio identification failed, no transcription fallback configured"}
	}
	transcript, err := l.Transcriber.Transcribe(ctx, clip)
	if err != nil || strings.TrimSpace(transcript) == "" {
		return Result{Action: ActionAdvance, Message: "transcription fallback produced no text"}
	}
	parsed, err := l.TextAI.ParseText(ctx, transcript)
	if err != nil {
		return Result{Action: ActionAdvance, Message: "text AI parse of transcript failed"}
	}
	return l.applyIdentification(book, &providers.AudioIDResult{
		Author: parsed.Author, Title: parsed.Title, Narrator: parsed.Narrator,
		Series: parsed.Series, SeriesNum: parsed.SeriesNum,
		Confidence: 60, SLSource: "audio", Transcript: transcript,
	})
}

func (l *AudioIDLayer) applyIdentification(book *database.Book, idResult *providers.AudioIDResult) Result {
	p := book.Profile
	source := profile.SourceAudio
	if idResult.SLSource == "database" {
		source = profile.SourceBookDB
	}
	if idResult.Author != "" {
		p.AddAuthor(source, idResult.Author)
	}
	if idResult.Title != "" {
		p.AddTitle(source, idResult.Title)
	}
	if idResult.Narrator != "" {
		p.Add(profile.FieldNarrator, source, idResult.Narrator)
	}
	if idResult.Series != "" {
		p.Add(profile.FieldSeries, source, idResult.Series)
	}
	if idResult.SeriesNum != "" {
		p.Add(profile.FieldSeriesNum, source, idResult.SeriesNum)
	}
	p.UsedLayer(l.Number())

	if idResult.RequeueSuggested {
		now := time.Now().UTC()
		requeueAfter := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, time.UTC)
		p.SLRequeue = &profile.SLRequeue{
			SuggestedAt:  now,
			RequeueAfter: requeueAfter,
			Reason:       "primary service signaled requeue_suggested",
		}
	}

	p.Finalize()
	book.Profile = p

	matchesCurrent := strings.EqualFold(p.Author.Value, book.Author) && strings.EqualFold(p.Title.Value, book.Title)
	confidence := 70
	if idResult.Confidence >= 85 {
		confidence = 85
	}

	if matchesCurrent {
		return Result{Action: ActionResolved, Confidence: confidence, Source: string(source),
			Message: "audio identification confirmed existing metadata", Verified: true}
	}

	if idResult.Confidence == 0 {
		return Result{Action: ActionAdvance, Message: "audio identification unclear"}
	}

	history := &database.HistoryEntry{
		BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
		NewAuthor: p.Author.Value, NewTitle: p.Title.Value,
		NewNarrator: p.Narrator.Value, NewSeries: p.Series.Value, NewSeriesNum: p.SeriesNum.Value,
		OldPath: book.Path, Status: database.HistoryPendingFix,
	}
	return Result{Action: ActionAdvance, NextLayer: intPtr(3), Confidence: confidence,
		Source: string(source), Message: "audio identification found a change, advancing to API enrichment",
		History: history}
}
