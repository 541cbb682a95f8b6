package pathbuilder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PadSeriesNum zero-pads a numeric series/volume number to width digits,
// preserving decimal sub-series positions ("1.5") and leaving an empty
// value empty rather than producing "00" (§4.5 template modifiers).
func PadSeriesNum(value string, width int) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	normalized := strings.ReplaceAll(value, ",", ".")
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return value
	}
	if f == float64(int64(f)) {
		return fmt.Sprintf("%0*d", width, int64(f))
	}
	parts := strings.SplitN(normalized, ".", 2)
	intPart, _ := strconv.ParseInt(parts[0], 10, 64)
	return fmt.Sprintf("%0*d.%s", width, intPart, parts[1])
}

var padModifierPattern = regexp.MustCompile(`\{(\w+)\.pad\((\d+)\)\}`)

// applyTemplateModifiers resolves every {field.pad(N)} occurrence in
// template for the one field whose raw value is supplied; other fields'
// modifiers are left for subsequent calls.
func applyTemplateModifiers(template, field, value string) string {
	pattern := regexp.MustCompile(`\{` + regexp.QuoteMeta(field) + `\.pad\((\d+)\)\}`)
	return pattern.ReplaceAllStringFunc(template, func(match string) string {
		sub := pattern.FindStringSubmatch(match)
		width, _ := strconv.Atoi(sub[1])
		return PadSeriesNum(value, width)
	})
}

var (
	emptyParens       = regexp.MustCompile(`\(\s*\)`)
	emptyBrackets     = regexp.MustCompile(`\[\s*\]`)
	emptyBraces       = regexp.MustCompile(`\{\s*\}`)
	danglingDashSlash = regexp.MustCompile(`\s+-\s+(?:-|/|$)`)
	leadingDashSlash  = regexp.MustCompile(`/\s*-\s+`)
	leadingDashStart  = regexp.MustCompile(`^\s*-\s+`)
	trailingDash      = regexp.MustCompile(`\s+-$`)
	multiSlash        = regexp.MustCompile(`/+`)
	multiSpace        = regexp.MustCompile(`\s{2,}`)
)

// collapseSeparators cleans up a rendered path string after substitution:
// empty parens/brackets/braces, dangling "-" separators, duplicated
// slashes, and multiple spaces (§4.5 template modifiers).
func collapseSeparators(s string) string {
	s = emptyParens.ReplaceAllString(s, "")
	s = emptyBrackets.ReplaceAllString(s, "")
	s = emptyBraces.ReplaceAllString(s, "")
	s = danglingDashSlash.ReplaceAllString(s, "")
	s = leadingDashSlash.ReplaceAllString(s, "/")
	s = leadingDashStart.ReplaceAllString(s, "")
	s = trailingDash.ReplaceAllString(s, "")
	s = multiSlash.ReplaceAllString(s, "/")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.Trim(s, " /")
}
