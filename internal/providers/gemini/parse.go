package gemini

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/drallgood/libraryd/internal/providers"
)

// jsonBlockPattern extracts a ```json ... ``` fenced block or a bare {...}
// object from a chat-style AI response, since models frequently wrap their
// JSON answer in prose or markdown fencing despite being asked not to.
var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

func extractJSON(text string) string {
	if m := jsonBlockPattern.FindString(text); m != "" {
		return m
	}
	return text
}

type textPayload struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	Narrator   string `json:"narrator"`
	Series     string `json:"series"`
	SeriesNum  string `json:"series_num"`
	Year       string `json:"year"`
}

func parseStructuredJSON(text string) (*providers.TextResult, error) {
	var p textPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &p); err != nil {
		return nil, fmt.Errorf("parsing AI JSON response: %w", err)
	}
	return &providers.TextResult{
		Author:    p.Author,
		Title:     p.Title,
		Narrator:  p.Narrator,
		Series:    p.Series,
		SeriesNum: p.SeriesNum,
		Year:      p.Year,
	}, nil
}

type audioPayload struct {
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Narrator       string   `json:"narrator"`
	Series         string   `json:"series"`
	SeriesNum      string   `json:"series_num"`
	Confidence     int      `json:"confidence"`
	Language       string   `json:"language"`
	ChapterNumber  string   `json:"chapter_number"`
	ChapterTitle   string   `json:"chapter_title"`
	CharacterNames []string `json:"character_names"`
	ContextClues   []string `json:"context_clues"`
}

func parseAudioAnalysis(text string) (*providers.AudioAnalysis, error) {
	var p audioPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &p); err != nil {
		return nil, fmt.Errorf("parsing AI audio response: %w", err)
	}
	return &providers.AudioAnalysis{
		Author:         p.Author,
		Title:          p.Title,
		Narrator:       p.Narrator,
		Series:         p.Series,
		SeriesNum:      p.SeriesNum,
		Confidence:     p.Confidence,
		Language:       p.Language,
		ChapterNumber:  p.ChapterNumber,
		ChapterTitle:   p.ChapterTitle,
		CharacterNames: p.CharacterNames,
		ContextClues:   p.ContextClues,
	}, nil
}
