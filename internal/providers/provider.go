// Package providers defines the shared contract every metadata/identification
// backend implements, so the layer engine can gather candidates from the
// provider chain without knowing which concrete service answered.
package providers

import "context"

// Candidate is one match returned by a metadata provider for a search query.
type Candidate struct {
	Provider   string
	Author     string
	Title      string
	Narrator   string
	Series     string
	SeriesNum  string
	Year       string
	Language   string
	ISBN       string
	Confidence int // 0-100, provider's own estimate, independent of source weight
}

// Query describes what a caller is trying to match, typically derived from
// the folder-name hint and any evidence already gathered.
type Query struct {
	Author string
	Title  string
	ISBN   string
}

// MetadataProvider is implemented by Layer 2 candidate sources (audnexus,
// hardcover, googlebooks, openlibrary).
type MetadataProvider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

// TextResult is the parsed output of an AI text provider asked to turn a
// messy "author - title" string (or a transcript) into structured fields.
type TextResult struct {
	Author    string
	Title     string
	Narrator  string
	Series    string
	SeriesNum string
	Year      string
	Raw       string // the provider's raw response text, kept for validators
}

// TextAIProvider is implemented by Layer 3's AI verification backends
// (gemini, openrouter). Every AI text provider exposes call(prompt) ->
// parsed JSON per §6.2; ParseText is that call plus the JSON decode.
type TextAIProvider interface {
	Name() string
	ParseText(ctx context.Context, prompt string) (*TextResult, error)
}

// AudioMode selects the prompt/parsing shape an AI audio provider applies,
// per §6.2's analyze(audio_clip, mode) contract.
type AudioMode string

const (
	AudioModeCredits  AudioMode = "credits"
	AudioModeIdentify AudioMode = "identify"
	AudioModeContent  AudioMode = "content"
	AudioModeLanguage AudioMode = "language"
)

// AudioAnalysis is the structured record an AI audio provider returns after
// transcribing/analyzing a clip, covering both the Layer 4 credits-announcement
// shape and the Layer 5 mid-book orphan-chapter shape.
type AudioAnalysis struct {
	Author         string
	Title          string
	Narrator       string
	Series         string
	SeriesNum      string
	Confidence     int
	Language       string
	ChapterNumber  string
	ChapterTitle   string
	CharacterNames []string
	ContextClues   []string
	Raw            string
}

// AudioAIProvider is implemented by AI backends that can transcribe/analyze
// an audio clip (gemini). Layers 4 and 5 are unimplementable without one.
type AudioAIProvider interface {
	Name() string
	Analyze(ctx context.Context, clip []byte, mode AudioMode) (*AudioAnalysis, error)
}

// AudioIDResult is what the primary identification service returns for a
// submitted audio clip, either immediately or after fair-queue polling
// (§4.3 Layer 1, §6.2).
type AudioIDResult struct {
	Author           string
	Title            string
	Narrator         string
	Series           string
	SeriesNum        string
	Confidence       int
	SLSource         string // "database" | "audio" | "live_scrape"
	RequeueSuggested bool
	Transcript       string
}

// AudioIdentifier is implemented by the primary identification service: a
// fair-queue audio-ID endpoint distinct from the generic MetadataProvider
// text search it also offers.
type AudioIdentifier interface {
	IdentifyAudio(ctx context.Context, clip []byte, folderHint string) (*AudioIDResult, error)
}
