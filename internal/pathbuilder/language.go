package pathbuilder

import "fmt"

// LanguageNames maps ISO-639-1 codes to display names for the subset of
// languages the library cares to tag (§4.5 language tagging).
var LanguageNames = map[string]string{
	"en": "English", "de": "German", "fr": "French", "es": "Spanish",
	"it": "Italian", "pt": "Portuguese", "nl": "Dutch", "pl": "Polish",
	"ru": "Russian", "ja": "Japanese", "zh": "Chinese", "ko": "Korean",
	"sv": "Swedish", "no": "Norwegian", "da": "Danish", "fi": "Finnish",
	"cs": "Czech", "el": "Greek", "hu": "Hungarian", "ro": "Romanian",
	"tr": "Turkish", "uk": "Ukrainian", "ar": "Arabic", "he": "Hebrew",
	"hi": "Hindi", "th": "Thai", "vi": "Vietnamese", "id": "Indonesian",
}

// FormatLanguageTag renders a language tag in the configured format:
// code, full name, bracketed code, or bracketed full name.
func FormatLanguageTag(code, name, format string) string {
	if name == "" {
		name = LanguageNames[code]
	}
	if name == "" {
		name = code
	}
	switch format {
	case "code":
		return code
	case "bracket_code":
		return fmt.Sprintf("[%s]", code)
	case "bracket_full":
		return fmt.Sprintf("[%s]", name)
	case "full":
		fallthrough
	default:
		return name
	}
}

// ApplyLanguageTag inserts tag into title at the configured position.
// Subfolder placement is handled by the caller (it changes the directory
// structure, not the title string).
func ApplyLanguageTag(title, tag, position string) string {
	if tag == "" {
		return title
	}
	switch position {
	case "before_title":
		return tag + " " + title
	case "after_title":
		fallthrough
	default:
		return title + " " + tag
	}
}
