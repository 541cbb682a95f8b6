package openrouter

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/drallgood/libraryd/internal/providers"
)

var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

func extractJSON(text string) string {
	if m := jsonBlockPattern.FindString(text); m != "" {
		return m
	}
	return text
}

type textPayload struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Narrator  string `json:"narrator"`
	Series    string `json:"series"`
	SeriesNum string `json:"series_num"`
	Year      string `json:"year"`
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
