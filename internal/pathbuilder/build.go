package pathbuilder

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Input holds the resolved metadata for a single book, as fused by
// internal/profile, that a path is built from.
type Input struct {
	Author     string
	Title      string
	Narrator   string
	Series     string
	SeriesNum  string
	Year       string
	Edition    string
	Variant    string
	Language   string
	LanguageName string
}

// Options controls how Build renders a path, mirroring the naming fields
// of internal/config.Config so this package stays independent of it.
type Options struct {
	NamingFormat              string // "author/title" | "author - title" | "author_lf/title" | "custom"
	CustomTemplate            string
	SeriesGrouping            bool
	StandardizeAuthorInitials bool
	StripUnabridgedTitles     bool
	LanguageTagEnabled        bool
	LanguageTagFormat         string // "code" | "full" | "bracket_code" | "bracket_full"
	LanguageTagPosition       string // "before_title" | "after_title" | "subfolder"
	PreferredLanguage         string
}

const seriesNumPadWidth = 2

// titleFolder renders the leaf folder name for a book: an optional
// zero-padded series-number prefix, the title, narrator/edition/variant
// suffixes, and a year in parens when no edition/variant is present.
func titleFolder(in Input, opts Options) string {
	title := in.Title
	if opts.StripUnabridgedTitles {
		title = StripUnabridged(title)
	}

	folder := title
	if in.SeriesNum != "" {
		folder = fmt.Sprintf("%s - %s", PadSeriesNum(in.SeriesNum, seriesNumPadWidth), folder)
	}

	hasEditionOrVariant := in.Edition != "" || in.Variant != ""
	var suffixes []string
	if in.Edition != "" {
		suffixes = append(suffixes, fmt.Sprintf("[%s]", in.Edition))
	}
	if in.Variant != "" {
		suffixes = append(suffixes, fmt.Sprintf("[%s]", in.Variant))
	}
	if !hasEditionOrVariant && in.Year != "" {
		suffixes = append(suffixes, fmt.Sprintf("(%s)", in.Year))
	}
	if in.Narrator != "" {
		if opts.SeriesGrouping {
			suffixes = append(suffixes, fmt.Sprintf("{%s}", in.Narrator))
		} else {
			suffixes = append(suffixes, fmt.Sprintf("(%s)", in.Narrator))
		}
	}
	if len(suffixes) > 0 {
		folder = folder + " " + strings.Join(suffixes, " ")
	}

	if opts.LanguageTagEnabled && opts.LanguageTagPosition != "subfolder" && in.Language != "" && in.Language != opts.PreferredLanguage {
		tag := FormatLanguageTag(in.Language, in.LanguageName, opts.LanguageTagFormat)
		folder = ApplyLanguageTag(folder, tag, opts.LanguageTagPosition)
	}

	return folder
}

func authorFolder(in Input, opts Options, lastFirst bool) string {
	author := in.Author
	if opts.StandardizeAuthorInitials {
		author = StandardizeInitials(author)
	}
	if lastFirst {
		return FormatAuthorLF(author)
	}
	return author
}

func renderTemplate(in Input, opts Options) string {
	tmpl := opts.CustomTemplate
	values := map[string]string{
		"author":   in.Author,
		"title":    in.Title,
		"narrator": in.Narrator,
		"series":   in.Series,
		"year":     in.Year,
		"edition":  in.Edition,
		"variant":  in.Variant,
	}
	for field, value := range values {
		tmpl = applyTemplateModifiers(tmpl, field, value)
		tmpl = strings.ReplaceAll(tmpl, "{"+field+"}", value)
	}
	tmpl = applyTemplateModifiers(tmpl, "series_num", in.SeriesNum)
	tmpl = strings.ReplaceAll(tmpl, "{series_num}", in.SeriesNum)
	return collapseSeparators(tmpl)
}

// components returns the path segments (relative to the library root)
// for in, before sanitization, according to opts.NamingFormat.
func components(in Input, opts Options) []string {
	switch opts.NamingFormat {
	case "custom":
		rendered := renderTemplate(in, opts)
		return strings.Split(rendered, "/")
	case "author - title":
		return []string{fmt.Sprintf("%s - %s", authorFolder(in, opts, false), titleFolder(in, opts))}
	case "author_lf/title":
		return []string{authorFolder(in, opts, true), titleFolder(in, opts)}
	default: // "author/title"
		segments := []string{authorFolder(in, opts, false)}
		if opts.LanguageTagEnabled && opts.LanguageTagPosition == "subfolder" && in.Language != "" && in.Language != opts.PreferredLanguage {
			tag := FormatLanguageTag(in.Language, in.LanguageName, opts.LanguageTagFormat)
			segments = append(segments, tag)
		}
		if opts.SeriesGrouping && in.Series != "" {
			segments = append(segments, in.Series)
		}
		segments = append(segments, titleFolder(in, opts))
		return segments
	}
}

// Build renders in into an absolute path under libraryRoot, sanitizing
// every component and refusing to produce a path that escapes the root
// (spec.md §4.5, Testable Property #1).
func Build(libraryRoot string, in Input, opts Options) (string, error) {
	if in.Author == "" || in.Title == "" {
		return "", fmt.Errorf("pathbuilder: author and title are required")
	}

	segments := components(in, opts)
	sanitized := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = collapseSeparators(seg)
		clean, ok := SanitizeComponent(seg)
		if !ok {
			return "", fmt.Errorf("pathbuilder: component %q failed sanitization", seg)
		}
		sanitized = append(sanitized, clean)
	}
	if len(sanitized) == 0 {
		return "", fmt.Errorf("pathbuilder: no usable path components")
	}

	candidate := filepath.Join(append([]string{libraryRoot}, sanitized...)...)
	resolvedRoot, err := filepath.Abs(libraryRoot)
	if err != nil {
		return "", fmt.Errorf("pathbuilder: resolving library root: %w", err)
	}
	resolvedCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("pathbuilder: resolving candidate path: %w", err)
	}
	rel, err := filepath.Rel(resolvedRoot, resolvedCandidate)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("pathbuilder: candidate path escapes library root")
	}

	return resolvedCandidate, nil
}
