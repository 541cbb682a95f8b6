package profile

import (
	"regexp"
	"strings"
	"unicode"
)

// authorBlacklist rejects single-word placeholder terms that occasionally
// leak in from folder names or stripped tags.
var authorBlacklist = map[string]bool{
	"unknown":     true,
	"earth":       true,
	"world":       true,
	"don't panic": true,
	"vol":         true,
	"chapter":     true,
	"various":     true,
	"unnamed":     true,
	"untitled":    true,
}

// PlaceholderAuthors lists author strings that never identify a book and
// force a book into deeper verification even if otherwise "matched".
var PlaceholderAuthors = map[string]bool{
	"unknown":         true,
	"unknown author":  true,
	"various":         true,
	"various authors": true,
	"n/a":             true,
	"na":              true,
}

var (
	leadingDigitOrBracket = regexp.MustCompile(`^[\d\[\(\{]`)
	topicPattern          = regexp.MustCompile(`(?i)^(the\s+\S+\s+of\s+\S+|world\s+war\s+\w+|\d+\s+things\s+)`)
	audioIntroPollution   = regexp.MustCompile(`(?i)(tantor audio|brilliance audio|\bpresents\b|written and read|narrated by|audible studios|full cast audio)`)
	titlePollution        = regexp.MustCompile(`(?i)(hardcover|first edition|modern library\s+c\.?\s*\d{4}|paperback edition|mass market)`)
	truncatedLowercase    = regexp.MustCompile(`^[a-z]`)
)

// numericTitleWhitelist are the pure-number titles that really are book
// titles ("1984", "2001: A Space Odyssey", …).
var numericTitleWhitelist = map[string]bool{
	"1984": true, "2001": true, "2010": true, "1776": true, "1066": true,
	"1421": true, "1491": true, "1493": true, "11/22/63": true,
}

// ValidateAuthor reports whether a candidate author string is plausible
// evidence. Validators are the only path that may insert author evidence.
func ValidateAuthor(candidate string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return false
	}
	if authorBlacklist[strings.ToLower(c)] {
		return false
	}
	if leadingDigitOrBracket.MatchString(c) {
		return false
	}
	if topicPattern.MatchString(c) {
		return false
	}
	if audioIntroPollution.MatchString(c) {
		return false
	}
	return true
}

// ValidateTitle reports whether a candidate title string is plausible
// evidence.
func ValidateTitle(candidate string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return false
	}
	if authorBlacklist[strings.ToLower(c)] {
		return false
	}
	if leadingDigitOrBracket.MatchString(c) {
		if !isWhitelistedNumericTitle(c) {
			return false
		}
	}
	if topicPattern.MatchString(c) {
		return false
	}
	if audioIntroPollution.MatchString(c) {
		return false
	}
	if titlePollution.MatchString(c) {
		return false
	}
	if truncatedLowercase.MatchString(c) {
		return false
	}
	if isPureNumber(c) && !isWhitelistedNumericTitle(c) {
		return false
	}
	return true
}

func isWhitelistedNumericTitle(c string) bool {
	return numericTitleWhitelist[c]
}

func isPureNumber(c string) bool {
	for _, r := range c {
		if !unicode.IsDigit(r) && r != '/' && r != ':' {
			return false
		}
	}
	return true
}

// IsPlaceholderAuthor reports whether an author string is a known
// placeholder (e.g. "Unknown", "Various") rather than a real identification.
func IsPlaceholderAuthor(author string) bool {
	return PlaceholderAuthors[strings.ToLower(strings.TrimSpace(author))]
}

// systemFolderBlacklist rejects scan hits that are plainly OS/app litter
// rather than book folders.
var systemFolderBlacklist = []string{
	"@eadir", "#recycle", ".ds_store", "system volume information",
	"tmp", "cache", "backup", "$recycle.bin", ".appledouble",
}

// IsSystemFolderName reports whether a folder name (author or title slot) is
// garbage left behind by an OS or media server rather than a book.
func IsSystemFolderName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	if strings.HasPrefix(n, "@") || strings.HasPrefix(n, "#") {
		return true
	}
	for _, bad := range systemFolderBlacklist {
		if n == bad {
			return true
		}
	}
	return false
}
