package pathbuilder

import (
	"regexp"
	"strings"
)

// namePrefixes are surname particles kept with the last name when they are
// followed by at least one more word ("de Balzac", "van Beethoven").
var namePrefixes = map[string]bool{
	"de": true, "da": true, "di": true, "del": true, "della": true,
	"van": true, "von": true, "der": true, "den": true, "ter": true,
	"le": true, "la": true, "du": true, "des": true, "el": true,
	"al": true, "ibn": true, "bin": true, "ben": true, "mc": true, "o'": true,
}

// nameSuffixes are kept trailing with the surname rather than treated as a
// given name ("Robert Downey Jr.").
var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "v": true,
	"vi": true, "phd": true, "md": true, "esq": true,
}

func stripTrailingDot(s string) string {
	return strings.TrimSuffix(strings.ToLower(s), ".")
}

// ParseAuthorName splits an author string into (first, last), handling
// pre-formatted "Last, First" input, surname particles, and trailing
// suffixes, per spec.md §4.5.
func ParseAuthorName(author string) (first, last string) {
	author = strings.TrimSpace(author)
	if author == "" {
		return "", ""
	}

	if idx := strings.Index(author, ","); idx >= 0 {
		left := strings.TrimSpace(author[:idx])
		right := strings.TrimSpace(author[idx+1:])
		if left != "" && right != "" {
			if nameSuffixes[stripTrailingDot(right)] {
				// "Downey, Jr." is a suffix, not a first name: fold back
				// into plain parsing as "Downey Jr."
				author = left + " " + right
			} else {
				return right, left
			}
		}
	}

	words := strings.Fields(author)
	if len(words) == 1 {
		return "", words[0]
	}

	var suffix []string
	for len(words) > 0 && nameSuffixes[stripTrailingDot(words[len(words)-1])] {
		suffix = append([]string{words[len(words)-1]}, suffix...)
		words = words[:len(words)-1]
	}

	if len(words) == 0 {
		return "", strings.Join(suffix, " ")
	}
	if len(words) == 1 {
		last = words[0]
		if len(suffix) > 0 {
			last += " " + strings.Join(suffix, " ")
		}
		return "", last
	}

	lastNameStart := len(words) - 1
	for i := 1; i < len(words)-1; i++ {
		w := strings.TrimSuffix(strings.ToLower(words[i]), "'")
		if namePrefixes[w] {
			lastNameStart = i
			break
		}
	}

	lastParts := words[lastNameStart:]
	firstParts := words[:lastNameStart]

	last = strings.Join(lastParts, " ")
	if len(suffix) > 0 {
		last += " " + strings.Join(suffix, " ")
	}
	first = strings.Join(firstParts, " ")
	return first, last
}

// FormatAuthorLF renders "LastName, FirstName".
func FormatAuthorLF(author string) string {
	first, last := ParseAuthorName(author)
	if first == "" {
		return last
	}
	return last + ", " + first
}

// FormatAuthorFL renders "FirstName LastName", useful for normalizing
// "Last, First" input back to standard order.
func FormatAuthorFL(author string) string {
	first, last := ParseAuthorName(author)
	if first == "" {
		return last
	}
	return first + " " + last
}

var (
	mcMacPrefix    = regexp.MustCompile(`(?i)^(Mc|Mac|O')`)
	allCapsWord    = regexp.MustCompile(`^[A-Z]{2,}$`)
	dottedInitials = regexp.MustCompile(`^([A-Z]\.)+$`)
	singleLetter   = regexp.MustCompile(`^[A-Z]$`)
)

// StandardizeInitials normalizes an author's initials to "A. B." form,
// leaving Mc/Mac/O' surnames and already-correct full words untouched.
func StandardizeInitials(name string) string {
	if name == "" {
		return name
	}
	words := strings.Fields(name)
	out := make([]string, 0, len(words))
	for _, word := range words {
		switch {
		case mcMacPrefix.MatchString(word):
			out = append(out, word)
		case allCapsWord.MatchString(word):
			var b strings.Builder
			for i, r := range word {
				if i > 0 {
					b.WriteString(". ")
				}
				b.WriteRune(r)
			}
			b.WriteString(".")
			out = append(out, b.String())
		case dottedInitials.MatchString(word):
			letters := strings.ReplaceAll(word, ".", "")
			var b strings.Builder
			for i, r := range letters {
				if i > 0 {
					b.WriteString(". ")
				}
				b.WriteRune(r)
			}
			b.WriteString(".")
			out = append(out, b.String())
		case singleLetter.MatchString(word):
			out = append(out, word+".")
		default:
			out = append(out, word)
		}
	}
	return strings.Join(out, " ")
}
