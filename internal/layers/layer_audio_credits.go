package layers

import (
	"context"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/profile"
	"github.com/drallgood/libraryd/internal/providers"
)

// AudioCreditsLayer is Layer 4: analyze the opening credits announcement
// at the start of the first audio file ("Read by ...", "Narrated by ...") with an audio-AI
// provider when API lookups didn't resolve the item (spec.md §4.3 Layer
// 4).
type AudioCreditsLayer struct {
	EnabledFlag bool
	ClipSeconds int
	Clips       ClipExtractor
	AudioAI     providers.AudioAIProvider
}

const defaultCreditsClipSeconds = 30

func (l *AudioCreditsLayer) Number() int  { return 4 }
func (l *AudioCreditsLayer) Name() string { return "Layer 4: Audio Credits Analysis" }
func (l *AudioCreditsLayer) Enabled() bool {
	return l.EnabledFlag
}

func (l *AudioCreditsLayer) CanProcess(book *database.Book) bool {
	if book.UserLocked || book.Terminal() {
		return false
	}
	return book.VerificationLayer <= 4
}

func (l *AudioCreditsLayer) clipSeconds() int {
	if l.ClipSeconds > 0 {
		return l.ClipSeconds
	}
	return defaultCreditsClipSeconds
}

func (l *AudioCreditsLayer) Process(ctx context.Context, book *database.Book) Result {
	if l.Clips == nil || l.AudioAI == nil {
		return Result{Action: ActionAdvance, Message: "audio credits analysis unavailable"}
	}

	clip, err := l.Clips.FirstClip(ctx, book.Path, l.clipSeconds())
	if err != nil {
		return Result{Action: ActionAdvance, Message: "no audio file available: " + err.Error()}
	}

	analysis, err := l.AudioAI.Analyze(ctx, clip, providers.AudioModeCredits)
	if err != nil {
		return Result{Action: ActionRetry, Err: err, Message: "audio credits analysis failed"}
	}

	p := book.Profile
	changed := false
	if analysis.Author != "" {
		changed = p.AddAuthor(profile.SourceAI, analysis.Author) || changed
	}
	if analysis.Title != "" {
		changed = p.AddTitle(profile.SourceAI, analysis.Title) || changed
	}
	if analysis.Narrator != "" {
		p.Add(profile.FieldNarrator, profile.SourceAI, analysis.Narrator)
		changed = true
	}
	if analysis.Series != "" {
		p.Add(profile.FieldSeries, profile.SourceAI, analysis.Series)
	}
	if analysis.SeriesNum != "" {
		p.Add(profile.FieldSeriesNum, profile.SourceAI, analysis.SeriesNum)
	}
	p.UsedLayer(l.Number())
	p.Finalize()
	book.Profile = p

	if !changed {
		return Result{Action: ActionAdvance, Message: "credits analysis found nothing new"}
	}

	history := &database.HistoryEntry{
		BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
		NewAuthor: p.Author.Value, NewTitle: p.Title.Value, NewNarrator: p.Narrator.Value,
		NewSeries: p.Series.Value, NewSeriesNum: p.SeriesNum.Value,
		OldPath: book.Path, Status: database.HistoryPendingFix,
	}
	return Result{Action: ActionResolved, Confidence: p.OverallConfidence,
		Message: "audio credits analysis identified the book", History: history}
}
