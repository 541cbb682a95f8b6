// Package pathbuilder safely renders (author, title, series, …) into an
// absolute target path under a library root, enforcing the sanitization and
// boundary rules in spec.md §4.5.
package pathbuilder

import (
	"regexp"
	"strings"
)

// dangerousChars are stripped from every path component: the Windows
// reserved set plus ASCII control characters 0x00-0x0f.
const dangerousChars = "<>:\"/\\|?*" +
	"\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c\x0d\x0e\x0f"

// SanitizeComponent sanitizes a single path component. It returns ("",
// false) if the component fails any rule, which forces the caller to treat
// the whole build as invalid — this is the load-bearing safety gate spec.md
// §4.5 describes.
func SanitizeComponent(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return "", false
	}

	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(dangerousChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.Trim(b.String(), ". ")

	if len(name) < 2 {
		return "", false
	}
	return name, true
}

// unabridgedPatterns matches the marker variants stripped when
// strip_unabridged is enabled (§4.5): parenthesized/bracketed markers, a
// leading separator plus the bare word, or a trailing bare word.
var unabridgedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*\(Unabridged\)`),
	regexp.MustCompile(`(?i)\s*\[Unabridged\]`),
	regexp.MustCompile(`(?i)\s*-\s*Unabridged\b`),
	regexp.MustCompile(`(?i)\s*,\s*Unabridged\b`),
	regexp.MustCompile(`(?i)\s+Unabridged$`),
	regexp.MustCompile(`(?i)\s*\(Abridged\)`),
	regexp.MustCompile(`(?i)\s*\[Abridged\]`),
	regexp.MustCompile(`(?i)\s*-\s*Abridged\b`),
	regexp.MustCompile(`(?i)\s*,\s*Abridged\b`),
	regexp.MustCompile(`(?i)\s+Abridged$`),
}

// StripUnabridged removes "(Unabridged)"/"[Unabridged]"/trailing
// " Unabridged" (and the Abridged equivalents) from a title.
func StripUnabridged(title string) string {
	cleaned := title
	for _, pattern := range unabridgedPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}
