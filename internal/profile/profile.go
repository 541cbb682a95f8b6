// Package profile implements the confidence-weighted evidence fusion model:
// per-field FieldValue records from heterogeneous sources are merged into a
// single canonical value with a defensible confidence number.
package profile

import (
	"sort"
	"strings"
	"time"
)

// Source identifies where a piece of evidence came from.
type Source string

const (
	SourceUser       Source = "user"
	SourceAudio      Source = "audio"
	SourceID3        Source = "id3"
	SourceJSON       Source = "json"
	SourceNFO        Source = "nfo"
	SourceBookDB     Source = "bookdb"
	SourceAI         Source = "ai"
	SourceAudnexus   Source = "audnexus"
	SourceGoogleBook Source = "googlebooks"
	SourceOpenLib    Source = "openlibrary"
	SourceHardcover  Source = "hardcover"
	SourcePath       Source = "path"
)

// sourceWeights are applied when grouping evidence during finalization.
// Higher means more trusted.
var sourceWeights = map[Source]int{
	SourceUser:       100,
	SourceAudio:      85,
	SourceID3:        80,
	SourceJSON:       75,
	SourceNFO:        70,
	SourceBookDB:     65,
	SourceAI:         60,
	SourceAudnexus:   55,
	SourceGoogleBook: 50,
	SourceOpenLib:    45,
	SourceHardcover:  45,
	SourcePath:       40,
}

// Field identifies a profile attribute.
type Field string

const (
	FieldAuthor    Field = "author"
	FieldTitle     Field = "title"
	FieldNarrator  Field = "narrator"
	FieldSeries    Field = "series"
	FieldSeriesNum Field = "series_num"
	FieldLanguage  Field = "language"
	FieldYear      Field = "year"
	FieldEdition   Field = "edition"
	FieldVariant   Field = "variant"
)

// fieldWeights, summing to 100, determine each field's contribution to
// overall confidence.
var fieldWeights = map[Field]int{
	FieldAuthor:    30,
	FieldTitle:     30,
	FieldNarrator:  15,
	FieldSeries:    10,
	FieldSeriesNum: 5,
	FieldLanguage:  5,
	FieldYear:      3,
	FieldEdition:   1,
	FieldVariant:   1,
}

var allFields = []Field{
	FieldAuthor, FieldTitle, FieldNarrator, FieldSeries, FieldSeriesNum,
	FieldLanguage, FieldYear, FieldEdition, FieldVariant,
}

// FieldValue is the finalized record for one profile field: a canonical
// value, a computed confidence, the ordered sources that contributed, and the
// raw value each source originally supplied.
type FieldValue struct {
	Value      string            `json:"value"`
	Confidence int               `json:"confidence"`
	Sources    []string          `json:"sources"`
	RawBySrc   map[string]string `json:"raw_by_source,omitempty"`
}

// SLRequeue marks a book whose audio-ID result asked to be re-checked later.
type SLRequeue struct {
	SuggestedAt  time.Time `json:"suggested_at"`
	RequeueAfter time.Time `json:"requeue_after"`
	Reason       string    `json:"reason"`
}

// SLVerified records a successful requeue recheck.
type SLVerified struct {
	BookID          string    `json:"book_id"`
	VerifiedAt      time.Time `json:"verified_at"`
	ConfidenceBoost int       `json:"confidence_boost"`
}

// SLRequeueComplete records a requeue recheck that did not find a match.
type SLRequeueComplete struct {
	CheckedAt time.Time `json:"checked_at"`
	Result    string    `json:"result"`
}

// evidence is one raw (source, value) observation not yet finalized into a
// FieldValue.
type evidence struct {
	source Source
	value  string
}

// Profile is the embedded, per-book evidence store. Evidence accumulates via
// Add* calls across layers; Finalize recomputes every FieldValue from the
// accumulated evidence.
type Profile struct {
	Author    FieldValue `json:"author"`
	Title     FieldValue `json:"title"`
	Narrator  FieldValue `json:"narrator"`
	Series    FieldValue `json:"series"`
	SeriesNum FieldValue `json:"series_num"`
	Language  FieldValue `json:"language"`
	Year      FieldValue `json:"year"`
	Edition   FieldValue `json:"edition"`
	Variant   FieldValue `json:"variant"`

	OverallConfidence      int       `json:"overall_confidence"`
	VerificationLayersUsed []int     `json:"verification_layers_used,omitempty"`
	NeedsAttention         bool      `json:"needs_attention"`
	Issues                 []string  `json:"issues,omitempty"`
	LastUpdated            time.Time `json:"last_updated"`

	AudioFingerprint string `json:"audio_fingerprint,omitempty"`
	NarratorID       string `json:"narrator_id,omitempty"`
	BookID           string `json:"book_id,omitempty"`
	VersionID        string `json:"version_id,omitempty"`
	VoiceClusterID   string `json:"voice_cluster_id,omitempty"`

	SLRequeue         *SLRequeue         `json:"sl_requeue,omitempty"`
	SLVerified        *SLVerified        `json:"sl_verified,omitempty"`
	SLRequeueComplete *SLRequeueComplete `json:"sl_requeue_complete,omitempty"`

	evidence map[Field][]evidence `json:"-"`
}

// Add records a raw (source, value) pair for a field. Author and title must
// go through AddAuthor/AddTitle, which validate the candidate first.
func (p *Profile) Add(field Field, source Source, value string) {
	if p.evidence == nil {
		p.evidence = make(map[Field][]evidence)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	p.evidence[field] = append(p.evidence[field], evidence{source: source, value: value})
}

// AddAuthor records an author candidate, rejecting it via ValidateAuthor
// first. Validators are the only path that inserts author evidence.
func (p *Profile) AddAuthor(source Source, value string) bool {
	if !ValidateAuthor(value) {
		return false
	}
	p.Add(FieldAuthor, source, value)
	return true
}

// AddTitle records a title candidate, rejecting it via ValidateTitle first.
func (p *Profile) AddTitle(source Source, value string) bool {
	if !ValidateTitle(value) {
		return false
	}
	p.Add(FieldTitle, source, value)
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Finalize recomputes every field from accumulated evidence. It is
// idempotent: calling it twice in a row without new evidence yields the same
// result (finalize ∘ finalize = finalize), since it only reads p.evidence and
// overwrites the FieldValue outputs deterministically.
func (p *Profile) Finalize() {
	for _, field := range allFields {
		setField(p, field, finalizeField(p.evidence[field]))
	}

	// Defense-in-depth: an upstream data bug sometimes stores a series name
	// as an author entity.
	if p.Author.Value != "" && p.Series.Value != "" &&
		normalize(p.Author.Value) == normalize(p.Series.Value) {
		p.Author = FieldValue{}
	}

	sum, total := overallWeights(p)
	if total > 0 {
		p.OverallConfidence = sum / total
	} else {
		p.OverallConfidence = 0
	}
	p.LastUpdated = finalizeTimestamp()
}

func overallWeights(p *Profile) (int, int) {
	sum, total := 0, 0
	for _, field := range allFields {
		fv := getField(p, field)
		if fv.Value == "" {
			continue
		}
		w := fieldWeights[field]
		sum += fv.Confidence * w
		total += w
	}
	return sum, total
}

// finalizeTimestamp is split out so tests can be deterministic about it if
// ever needed; production always uses wall-clock time.
var finalizeTimestamp = func() time.Time { return time.Now().UTC() }

func getField(p *Profile, field Field) FieldValue {
	switch field {
	case FieldAuthor:
		return p.Author
	case FieldTitle:
		return p.Title
	case FieldNarrator:
		return p.Narrator
	case FieldSeries:
		return p.Series
	case FieldSeriesNum:
		return p.SeriesNum
	case FieldLanguage:
		return p.Language
	case FieldYear:
		return p.Year
	case FieldEdition:
		return p.Edition
	case FieldVariant:
		return p.Variant
	}
	return FieldValue{}
}

func setField(p *Profile, field Field, fv FieldValue) {
	switch field {
	case FieldAuthor:
		p.Author = fv
	case FieldTitle:
		p.Title = fv
	case FieldNarrator:
		p.Narrator = fv
	case FieldSeries:
		p.Series = fv
	case FieldSeriesNum:
		p.SeriesNum = fv
	case FieldLanguage:
		p.Language = fv
	case FieldYear:
		p.Year = fv
	case FieldEdition:
		p.Edition = fv
	case FieldVariant:
		p.Variant = fv
	}
}

// group is one cluster of evidence agreeing (after normalization) on a value.
type group struct {
	normalized  string
	display     string
	displayWt   int
	weightSum   int
	sourceNames []string
	rawBySrc    map[string]string
}

func finalizeField(ev []evidence) FieldValue {
	if len(ev) == 0 {
		return FieldValue{}
	}

	groups := map[string]*group{}
	var order []string
	for _, e := range ev {
		norm := normalize(e.value)
		g, ok := groups[norm]
		if !ok {
			g = &group{normalized: norm, rawBySrc: map[string]string{}}
			groups[norm] = g
			order = append(order, norm)
		}
		w := sourceWeights[e.source]
		g.weightSum += w
		g.sourceNames = append(g.sourceNames, string(e.source))
		g.rawBySrc[string(e.source)] = e.value
		if w >= g.displayWt {
			g.displayWt = w
			g.display = e.value
		}
	}

	// Deterministic order for ties: iterate in first-seen order, pick the
	// highest weight sum, breaking ties by first-seen.
	var winner *group
	for _, key := range order {
		g := groups[key]
		if winner == nil || g.weightSum > winner.weightSum {
			winner = g
		}
	}

	confidence := winner.weightSum
	if confidence > 100 {
		confidence = 100
	}
	agreeing := len(winner.sourceNames)
	switch {
	case agreeing >= 4:
		confidence += 25
	case agreeing == 3:
		confidence += 20
	case agreeing == 2:
		confidence += 10
	}
	conflictingGroups := len(groups) - 1
	confidence -= conflictingGroups * 15
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	sort.Strings(winner.sourceNames)
	return FieldValue{
		Value:      winner.display,
		Confidence: confidence,
		Sources:    winner.sourceNames,
		RawBySrc:   winner.rawBySrc,
	}
}

// AddIssue appends a human-readable issue flag and marks the profile as
// needing attention.
func (p *Profile) AddIssue(issue string) {
	p.Issues = append(p.Issues, issue)
	p.NeedsAttention = true
}

// UsedLayer records that a verification layer touched this profile.
func (p *Profile) UsedLayer(layer int) {
	for _, l := range p.VerificationLayersUsed {
		if l == layer {
			return
		}
	}
	p.VerificationLayersUsed = append(p.VerificationLayersUsed, layer)
}
