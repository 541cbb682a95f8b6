package layers

import (
	"context"
	"fmt"
	"strings"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/profile"
	"github.com/drallgood/libraryd/internal/providers"
)

// AIVerifyLayer is Layer 3: ask a text-AI provider to parse/confirm the
// profile built so far, guarding drastic author changes behind the
// configured protection mode (spec.md §4.3 Layer 3, §4.4 drastic change).
type AIVerifyLayer struct {
	EnabledFlag          bool
	TextAI               providers.TextAIProvider
	ProtectAuthorChanges bool
	TrustTheProcess      bool
}

func (l *AIVerifyLayer) Number() int  { return 3 }
func (l *AIVerifyLayer) Name() string { return "Layer 3: AI Verification" }
func (l *AIVerifyLayer) Enabled() bool {
	return l.EnabledFlag
}

func (l *AIVerifyLayer) CanProcess(book *database.Book) bool {
	if book.UserLocked || book.Terminal() {
		return false
	}
	return book.VerificationLayer <= 3
}

// tokenSetFrom splits a name into lowercase alphanumeric tokens for
// overlap comparison (§4.4 drastic-change detection).
func tokenSetFrom(s string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,'\"")
		if word != "" {
			set[word] = true
		}
	}
	return set
}

// lastNameContainment reports whether the longest token of either name (its
// likely surname) appears inside some token of the other name.
func lastNameContainment(a, b map[string]bool) bool {
	for _, pair := range [2][2]map[string]bool{{a, b}, {b, a}} {
		longest := ""
		for tok := range pair[0] {
			if len(tok) > len(longest) || (len(tok) == len(longest) && tok < longest) {
				longest = tok
			}
		}
		for tok := range pair[1] {
			if len(longest) > 2 && strings.Contains(tok, longest) {
				return true
			}
		}
	}
	return false
}

// isDrasticAuthorChange implements §4.4: normalize both names, compare
// token sets; zero overlap falls back to last-name containment; anything
// under 30% overlap (and no containment) is drastic. A placeholder-style
// current author ("unknown", empty) is never drastic.
func isDrasticAuthorChange(current, proposed string) bool {
	current = strings.TrimSpace(current)
	if current == "" || strings.EqualFold(current, "unknown") {
		return false
	}
	curTokens := tokenSetFrom(current)
	newTokens := tokenSetFrom(proposed)
	if len(curTokens) == 0 || len(newTokens) == 0 {
		return false
	}

	overlap := 0
	for tok := range curTokens {
		if newTokens[tok] {
			overlap++
		}
	}
	if overlap == 0 {
		return !lastNameContainment(curTokens, newTokens)
	}
	ratio := float64(overlap) / float64(len(curTokens))
	return ratio < 0.3
}

func (l *AIVerifyLayer) Process(ctx context.Context, book *database.Book) Result {
	if l.TextAI == nil {
		return Result{Action: ActionAdvance, Message: "no text AI provider configured"}
	}

	p := book.Profile
	prompt := fmt.Sprintf(
		"Identify this audiobook. Current guess: author=%q title=%q. Folder: %q. "+
			"Respond with JSON: {\"author\":...,\"title\":...,\"narrator\":...,\"series\":...,\"series_num\":...,\"year\":...}",
		p.Author.Value, p.Title.Value, book.Path)

	result, err := l.TextAI.ParseText(ctx, prompt)
	if err != nil {
		return Result{Action: ActionRetry, Err: err, Message: "AI verification call failed"}
	}
	if result.Author == "" && result.Title == "" {
		return Result{Action: ActionAdvance, Message: "AI verification returned no usable fields"}
	}

	if result.Author != "" && isDrasticAuthorChange(book.Author, result.Author) {
		if l.ProtectAuthorChanges && !l.TrustTheProcess {
			history := &database.HistoryEntry{
				BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
				NewAuthor: result.Author, NewTitle: result.Title,
				OldPath: book.Path, Status: database.HistoryPendingFix,
				ErrorMessage: "Uncertain: drastic author change blocked by protect_author_changes",
			}
			return Result{Action: ActionResolved, Confidence: 0, Message: "drastic author change blocked",
				History: history}
		}
	}

	if result.Author != "" {
		p.AddAuthor(profile.SourceAI, result.Author)
	}
	if result.Title != "" {
		p.AddTitle(profile.SourceAI, result.Title)
	}
	if result.Narrator != "" {
		p.Add(profile.FieldNarrator, profile.SourceAI, result.Narrator)
	}
	if result.Series != "" {
		p.Add(profile.FieldSeries, profile.SourceAI, result.Series)
	}
	if result.SeriesNum != "" {
		p.Add(profile.FieldSeriesNum, profile.SourceAI, result.SeriesNum)
	}
	if result.Year != "" {
		p.Add(profile.FieldYear, profile.SourceAI, result.Year)
	}
	p.UsedLayer(l.Number())
	p.Finalize()
	book.Profile = p

	history := &database.HistoryEntry{
		BookID: book.ID, OldAuthor: book.Author, OldTitle: book.Title,
		NewAuthor: p.Author.Value, NewTitle: p.Title.Value,
		NewNarrator: p.Narrator.Value, NewSeries: p.Series.Value, NewSeriesNum: p.SeriesNum.Value,
		NewYear: p.Year.Value, OldPath: book.Path, Status: database.HistoryPendingFix,
	}
	return Result{Action: ActionResolved, Confidence: p.OverallConfidence,
		Message: "AI verification complete", History: history}
}
