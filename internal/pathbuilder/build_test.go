package pathbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions() Options {
	return Options{NamingFormat: "author/title"}
}

func TestBuildDefaultAuthorTitleLayout(t *testing.T) {
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire"}
	path, err := Build("/library", in, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/The Final Empire", path)
}

func TestBuildWithSeriesNumPadsAndPrefixes(t *testing.T) {
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", SeriesNum: "1"}
	path, err := Build("/library", in, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/01 - The Final Empire", path)
}

func TestBuildWithNarratorAndSeriesGroupingUsesCurlyBraces(t *testing.T) {
	opts := defaultOptions()
	opts.SeriesGrouping = true
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", Series: "Mistborn", Narrator: "Michael Kramer"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/Mistborn/The Final Empire {Michael Kramer}", path)
}

func TestBuildWithNarratorWithoutSeriesGroupingUsesParens(t *testing.T) {
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", Narrator: "Michael Kramer"}
	path, err := Build("/library", in, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/The Final Empire (Michael Kramer)", path)
}

func TestBuildYearOmittedWhenEditionPresent(t *testing.T) {
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", Year: "2006", Edition: "Anniversary Edition"}
	path, err := Build("/library", in, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/The Final Empire [Anniversary Edition]", path)
}

func TestBuildAuthorDashTitleFormat(t *testing.T) {
	opts := Options{NamingFormat: "author - title"}
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson - The Final Empire", path)
}

func TestBuildAuthorLastFirstFormat(t *testing.T) {
	opts := Options{NamingFormat: "author_lf/title"}
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Sanderson, Brandon/The Final Empire", path)
}

func TestBuildStripsUnabridgedMarker(t *testing.T) {
	opts := defaultOptions()
	opts.StripUnabridgedTitles = true
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire (Unabridged)"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/The Final Empire", path)
}

func TestBuildLanguageTagAfterTitle(t *testing.T) {
	opts := defaultOptions()
	opts.LanguageTagEnabled = true
	opts.LanguageTagFormat = "bracket_code"
	opts.LanguageTagPosition = "after_title"
	opts.PreferredLanguage = "en"
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", Language: "de"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/The Final Empire [de]", path)
}

func TestBuildLanguageTagSubfolder(t *testing.T) {
	opts := defaultOptions()
	opts.LanguageTagEnabled = true
	opts.LanguageTagFormat = "full"
	opts.LanguageTagPosition = "subfolder"
	opts.PreferredLanguage = "en"
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", Language: "de"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/German/The Final Empire", path)
}

func TestBuildLanguageTagSkippedForPreferredLanguage(t *testing.T) {
	opts := defaultOptions()
	opts.LanguageTagEnabled = true
	opts.LanguageTagFormat = "bracket_code"
	opts.LanguageTagPosition = "after_title"
	opts.PreferredLanguage = "en"
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", Language: "en"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/The Final Empire", path)
}

func TestBuildCustomTemplateWithPadModifier(t *testing.T) {
	opts := Options{NamingFormat: "custom", CustomTemplate: "{author}/{series_num.pad(3)} - {title}"}
	in := Input{Author: "Brandon Sanderson", Title: "The Final Empire", SeriesNum: "1"}
	path, err := Build("/library", in, opts)
	require.NoError(t, err)
	assert.Equal(t, "/library/Brandon Sanderson/001 - The Final Empire", path)
}

func TestBuildRejectsPathTraversalInAuthor(t *testing.T) {
	in := Input{Author: "../../etc", Title: "passwd"}
	_, err := Build("/library", in, defaultOptions())
	assert.Error(t, err)
}

func TestBuildRejectsDangerousCharacters(t *testing.T) {
	in := Input{Author: "Author", Title: "Title<>:\"/\\|?*"}
	path, err := Build("/library", in, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "/library/Author/Title", path)
}

func TestBuildRejectsEmptyRequiredFields(t *testing.T) {
	_, err := Build("/library", Input{Title: "Solo"}, defaultOptions())
	assert.Error(t, err)
}

func TestSanitizeComponentRejectsTraversal(t *testing.T) {
	_, ok := SanitizeComponent("../escape")
	assert.False(t, ok)
}

func TestSanitizeComponentRejectsShortResult(t *testing.T) {
	_, ok := SanitizeComponent("a")
	assert.False(t, ok)
}

func TestSanitizeComponentTrimsTrailingDot(t *testing.T) {
	clean, ok := SanitizeComponent("Mister Smith. ")
	require.True(t, ok)
	assert.Equal(t, "Mister Smith", clean)
}

func TestStripUnabridgedHandlesBracketAndBareForm(t *testing.T) {
	assert.Equal(t, "Mistborn", StripUnabridged("Mistborn [Unabridged]"))
	assert.Equal(t, "Mistborn", StripUnabridged("Mistborn - Unabridged"))
	assert.Equal(t, "Mistborn", StripUnabridged("Mistborn Unabridged"))
	assert.Equal(t, "Mistborn", StripUnabridged("Mistborn (Abridged)"))
}

func TestParseAuthorNameHandlesLastFirstInput(t *testing.T) {
	first, last := ParseAuthorName("Sanderson, Brandon")
	assert.Equal(t, "Brandon", first)
	assert.Equal(t, "Sanderson", last)
}

func TestParseAuthorNameHandlesSuffixAfterComma(t *testing.T) {
	first, last := ParseAuthorName("Downey, Jr.")
	assert.Equal(t, "", first)
	assert.Equal(t, "Downey Jr.", last)
}

func TestParseAuthorNameHandlesPrefixParticle(t *testing.T) {
	first, last := ParseAuthorName("Ludwig van Beethoven")
	assert.Equal(t, "Ludwig", first)
	assert.Equal(t, "van Beethoven", last)
}

func TestParseAuthorNameHandlesTrailingSuffix(t *testing.T) {
	first, last := ParseAuthorName("Robert Downey Jr.")
	assert.Equal(t, "Robert", first)
	assert.Equal(t, "Downey Jr.", last)
}

func TestParseAuthorNameHandlesSingleName(t *testing.T) {
	first, last := ParseAuthorName("Voltaire")
	assert.Equal(t, "", first)
	assert.Equal(t, "Voltaire", last)
}

func TestFormatAuthorLF(t *testing.T) {
	assert.Equal(t, "Sanderson, Brandon", FormatAuthorLF("Brandon Sanderson"))
}

func TestStandardizeInitialsExpandsStuckTogetherInitials(t *testing.T) {
	assert.Equal(t, "J. R. R. Tolkien", StandardizeInitials("JRR Tolkien"))
}

func TestStandardizeInitialsPreservesMacPrefix(t *testing.T) {
	assert.Equal(t, "MacDonald", StandardizeInitials("MacDonald"))
}

func TestStandardizeInitialsExpandsDottedInitials(t *testing.T) {
	assert.Equal(t, "J. R. Tolkien", StandardizeInitials("J.R. Tolkien"))
}

func TestPadSeriesNumPreservesDecimal(t *testing.T) {
	assert.Equal(t, "01.5", PadSeriesNum("1.5", 2))
}

func TestPadSeriesNumEmptyStaysEmpty(t *testing.T) {
	assert.Equal(t, "", PadSeriesNum("", 2))
}
