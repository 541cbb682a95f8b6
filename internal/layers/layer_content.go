package layers

import (
	"context"
	"strings"
	"time"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/profile"
	"github.com/drallgood/libraryd/internal/providers"
)

// ContentLayer is Layer 5, the last resort: pull a clip from the middle of
// the audio (10% in, capped at 5 minutes) and ask an AI audio provider to
// identify the book from narration content, characters, and style rather
// than a credits announcement. If it can't, the item is parked terminal
// needs_attention (spec.md §4.3 Layer 5).
type ContentLayer struct {
	EnabledFlag bool
	ClipSeconds int
	Clips       ClipExtractor
	AudioAI     providers.AudioAIProvider
}

const (
	defaultContentClipSeconds = 90
	contentOffsetPercent      = 10
	contentOffsetCap          = 5 * time.Minute
)

func (l *ContentLayer) Number() int  { return 5 }
func (l *ContentLayer) Name() string { return "Layer 5: Content Analysis" }
func (l *ContentLayer) Enabled() bool {
	return l.EnabledFlag
}

func (l *ContentLayer) CanProcess(book *database.Book) bool {
	if book.UserLocked || book.Terminal() {
		return false
	}
	return book.VerificationLayer == 5
}

func (l *ContentLayer) clipSeconds() int {
	if l.ClipSeconds > 0 {
		return l.ClipSeconds
	}
	return defaultContentClipSeconds
}

func (l *ContentLayer) Process(ctx context.Context, book *database.Book) Result {
	if l.Clips == nil || l.AudioAI == nil {
		return Result{Action: ActionTerminal, TerminalStatus: database.StatusNeedsAttention,
			Message: "all verification layers exhausted"}
	}

	clip, err := l.Clips.MiddleClip(ctx, book.Path, contentOffsetPercent, contentOffsetCap, l.clipSeconds())
	if err != nil {
		return Result{Action: ActionTerminal, TerminalStatus: database.StatusNeedsAttention,
			Message: "all verification layers exhausted"}
	}

	analysis, err := l.AudioAI.Analyze(ctx, clip, providers.AudioModeContent)
	if err != nil {
		return Result{Action: ActionRetry, Err: err, Message: "content analysis failed"}
	}

	identified := analysis.Author != "" || analysis.Title != ""
	if !identified && len(analysis.CharacterNames) == 0 {
		return Result{Action: ActionTerminal, TerminalStatus: database.StatusNeedsAttention,
			Message: "all verification layers exhausted"}
	}

	p := book.Profile
	if analysis.Author != "" {
		p.AddAuthor(profile.SourceAI, analysis.Author)
	}
	if analysis.Title != "" {
		p.AddTitle(profile.SourceAI, analysis.Title)
	}
	if analysis.Narrator != "" {
		p.Add(profile.FieldNarrator, profile.SourceAI, analysis.Narrator)
	}
	if analysis.Series != "" {
		p.Add(profile.FieldSeries, profile.SourceAI, analysis.Series)
	}
	if analysis.SeriesNum != "" {
		p.Add(profile.FieldSeriesNum, profile.SourceAI, analysis.SeriesNum)
	}
	p.UsedLayer(l.Number())
	p.AddIssue("identified via last-resort content analysis: " + contentEvidenceSummary(analysis))
	p.Finalize()
	book.Profile = p

	if p.Author.Value == "" && p.Title.Value == "" {
		return Result{Action: ActionTerminal, TerminalStatus: database.StatusNeedsAttention,
			Message: "all verification layers exhausted"}
	}

	history := &database.HistoryEntry{
		BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
		NewAuthor: p.Author.Value, NewTitle: p.Title.Value, NewNarrator: p.Narrator.Value,
		NewSeries: p.Series.Value, NewSeriesNum: p.SeriesNum.Value,
		OldPath: book.Path, Status: database.HistoryPendingFix,
	}
	return Result{Action: ActionResolved, Confidence: p.OverallConfidence,
		Message: "content analysis identified the book from narration", History: history}
}

func contentEvidenceSummary(a *providers.AudioAnalysis) string {
	var parts []string
	if a.ChapterTitle != "" {
		parts = append(parts, "chapter "+a.ChapterTitle)
	}
	if len(a.CharacterNames) > 0 {
		parts = append(parts, "characters: "+strings.Join(a.CharacterNames, ", "))
	}
	if len(a.ContextClues) > 0 {
		parts = append(parts, "clues: "+strings.Join(a.ContextClues, ", "))
	}
	if len(parts) == 0 {
		return "no supporting evidence recorded"
	}
	return strings.Join(parts, "; ")
}
