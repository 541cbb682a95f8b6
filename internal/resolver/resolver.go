// Package resolver decides, when a proposed target path collides with an
// existing non-empty folder, whether the two folders are the same book, a
// corrupt copy, or a genuinely different version — and if the latter,
// produces a distinguished path (spec.md §4.5).
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/drallgood/libraryd/internal/pathbuilder"
)

// Outcome classifies the comparison between a source folder and an
// existing destination folder.
type Outcome string

const (
	// OutcomeIdentical means the two folders contain the same audio
	// files by extension and size bucket; the source is a pure duplicate.
	OutcomeIdentical Outcome = "identical"
	// OutcomeSameBook means the overlap ratio cleared the duplicate
	// threshold even though not every file matched exactly.
	OutcomeSameBook Outcome = "same_book"
	// OutcomeDifferentVersions means the folders' overlap ratio fell below
	// the duplicate threshold for what is nominally the same book.
	OutcomeDifferentVersions Outcome = "different_versions"
)

// duplicateOverlapThreshold is the file-overlap ratio (§4.5) at or above
// which two folders are treated as the same book rather than different
// versions.
const duplicateOverlapThreshold = 0.6

// Comparison is the result of comparing a source and destination folder's
// file contents.
type Comparison struct {
	Outcome       Outcome
	OverlapRatio  float64
	SourceFiles   int
	DestFiles     int
	MatchingCount int
	SourceCorrupt bool
	DestCorrupt   bool
}

// audioExtensions are the files considered when building a folder's
// content fingerprint; non-audio sidecar files (cover art, nfo) are
// ignored for comparison purposes.
var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".m4b": true, ".flac": true,
	".ogg": true, ".opus": true, ".aac": true, ".wav": true,
}

// fileFingerprint normalizes a filename+size pair into a comparison key:
// the extension plus the size in whole 64KB units (rounded down), since the same
// audio content re-encoded at a different bitrate still lands in a
// similar size bucket while wildly different rips don't collide.
func fileFingerprint(name string, size int64) string {
	bucket := size / (64 * 1024)
	return fmt.Sprintf("%s:%d", strings.ToLower(filepath.Ext(name)), bucket)
}

func listAudioFiles(dir string) (files map[string]os.FileInfo, corrupt bool) {
	files = make(map[string]os.FileInfo)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return files, false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !audioExtensions[ext] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			corrupt = true
			continue
		}
		files[entry.Name()] = info
	}
	return files, corrupt
}

// CompareFolders inspects source and dest on disk and classifies their
// relationship per §4.5: corrupt-file detection takes priority over
// overlap-ratio comparison.
func CompareFolders(source, dest string) Comparison {
	sourceFiles, sourceCorrupt := listAudioFiles(source)
	destFiles, destCorrupt := listAudioFiles(dest)

	fingerprints := func(files map[string]os.FileInfo) map[string]bool {
		set := make(map[string]bool, len(files))
		for name, info := range files {
			set[fileFingerprint(name, info.Size())] = true
		}
		return set
	}
	sourceSet := fingerprints(sourceFiles)
	destSet := fingerprints(destFiles)

	matching := 0
	for fp := range sourceSet {
		if destSet[fp] {
			matching++
		}
	}
	union := len(sourceSet)
	for fp := range destSet {
		if !sourceSet[fp] {
			union++
		}
	}

	ratio := 0.0
	if union > 0 {
		ratio = float64(matching) / float64(union)
	}

	outcome := OutcomeDifferentVersions
	switch {
	case len(sourceFiles) == len(destFiles) && matching == union && union > 0:
		outcome = OutcomeIdentical
	case ratio >= duplicateOverlapThreshold:
		outcome = OutcomeSameBook
	}

	return Comparison{
		Outcome:       outcome,
		OverlapRatio:  ratio,
		SourceFiles:   len(sourceFiles),
		DestFiles:     len(destFiles),
		MatchingCount: matching,
		SourceCorrupt: sourceCorrupt,
		DestCorrupt:   destCorrupt,
	}
}

// Decision is what the caller should do after Resolve runs.
type Decision string

const (
	// DecisionMove means path holds a safe, unique destination to move
	// the source into.
	DecisionMove Decision = "move"
	// DecisionDuplicate means the source is a duplicate of an existing,
	// valid destination and should be left for the user to remove.
	DecisionDuplicate Decision = "duplicate"
	// DecisionCorruptDest means the destination is corrupt but could not
	// be safely replaced; left for operator review.
	DecisionCorruptDest Decision = "corrupt_dest"
	// DecisionConflict means no distinguisher and no safe classification
	// were found; left for operator review.
	DecisionConflict Decision = "conflict"
)

// Result is the outcome of Resolve.
type Result struct {
	Decision Decision
	Path     string
	Reason   string
}

// Input is the proposed rename together with the information needed to
// build a distinguished path if the plain target collides.
type Input struct {
	SourcePath  string
	LibraryRoot string
	Book        pathbuilder.Input
	Options     pathbuilder.Options

	// Distinguisher candidates known about the source but not yet part
	// of Book — e.g. a narrator recovered from audio tags, or a variant
	// label surfaced by an earlier layer. Only tried if Book's own field
	// is still empty (§4.5: "only adding a distinguisher that is not
	// already present in the path").
	SourceAudioNarrator string
	SourceVariant       string
	SourceEdition       string
}

var versionSuffix = regexp.MustCompile(`\[Version ([A-Z])\]$`)

// nextVersionLetter scans dest's siblings (folders that share dest's
// parent and base name prefix) for existing "Version X" suffixes and
// returns the next unused letter.
func nextVersionLetter(dest string) string {
	parent := filepath.Dir(dest)
	base := filepath.Base(dest)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "B"
	}
	used := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if m := versionSuffix.FindStringSubmatch(name); m != nil {
			used[m[1]] = true
		}
	}
	for c := 'B'; c <= 'Z'; c++ {
		letter := string(c)
		if !used[letter] {
			return letter
		}
	}
	return "B"
}

// candidateWithDistinguisher rebuilds the path with one extra field set,
// skipping the attempt entirely if that field is already present (§4.5:
// "only adding a distinguisher that is not already present in the path").
func candidateWithDistinguisher(in Input, field, value string) (string, bool) {
	if value == "" {
		return "", false
	}
	book := in.Book
	switch field {
	case "narrator":
		if book.Narrator != "" {
			return "", false
		}
		book.Narrator = value
	case "variant":
		if book.Variant != "" {
			return "", false
		}
		book.Variant = value
	case "edition":
		if book.Edition != "" {
			return "", false
		}
		book.Edition = value
	case "year":
		if book.Year == "" {
			return "", false
		}
		// Year is already part of the default template; nothing to add.
		return "", false
	}
	path, err := pathbuilder.Build(in.LibraryRoot, book, in.Options)
	if err != nil {
		return "", false
	}
	return path, true
}

func pathExistsNonEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Resolve implements §4.5's duplicate/version resolver. It assumes the
// caller already built the plain target path via pathbuilder.Build and
// found it collides with a non-empty existing folder.
func Resolve(in Input, target string) Result {
	if !pathExistsNonEmpty(target) {
		return Result{Decision: DecisionMove, Path: target}
	}

	// Step 1: try distinguishers in order narrator, variant, edition, year.
	distinguishers := []struct {
		field, value string
	}{
		{"narrator", in.SourceAudioNarrator},
		{"variant", in.SourceVariant},
		{"edition", in.SourceEdition},
		{"year", in.Book.Year},
	}
	for _, d := range distinguishers {
		candidate, ok := candidateWithDistinguisher(in, d.field, d.value)
		if ok && !pathExistsNonEmpty(candidate) {
			return Result{Decision: DecisionMove, Path: candidate,
				Reason: fmt.Sprintf("distinguished by %s", d.field)}
		}
	}

	// Step 2: compare folder contents.
	cmp := CompareFolders(in.SourcePath, target)

	switch {
	case cmp.DestCorrupt && !cmp.SourceCorrupt:
		book := in.Book
		book.Variant = appendVariant(book.Variant, "Valid Copy")
		path, err := pathbuilder.Build(in.LibraryRoot, book, in.Options)
		if err != nil || pathExistsNonEmpty(path) {
			return Result{Decision: DecisionCorruptDest, Path: target,
				Reason: "destination files are corrupt/unreadable and a Valid Copy path could not be built"}
		}
		return Result{Decision: DecisionMove, Path: path,
			Reason: "destination corrupt, source valid: moved to Valid Copy path"}

	case cmp.SourceCorrupt && !cmp.DestCorrupt:
		return Result{Decision: DecisionDuplicate, Path: target,
			Reason: "source is corrupt/unreadable and a valid copy already exists at the destination"}

	case cmp.Outcome == OutcomeIdentical || cmp.Outcome == OutcomeSameBook:
		return Result{Decision: DecisionDuplicate, Path: target,
			Reason: fmt.Sprintf("duplicate detected (%.0f%% overlap, %d of %d/%d files match)",
				cmp.OverlapRatio*100, cmp.MatchingCount, cmp.SourceFiles, cmp.DestFiles)}

	default: // different_versions
		letter := nextVersionLetter(target)
		book := in.Book
		book.Variant = appendVariant(book.Variant, "Version "+letter)
		path, err := pathbuilder.Build(in.LibraryRoot, book, in.Options)
		if err != nil || pathExistsNonEmpty(path) {
			return Result{Decision: DecisionConflict, Path: target,
				Reason: "different version detected but no distinguisher could be resolved"}
		}
		return Result{Decision: DecisionMove, Path: path,
			Reason: fmt.Sprintf("different version: assigned %q", "Version "+letter)}
	}
}

func appendVariant(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + ", " + addition
}

// CleanEmptyParentDir removes dir if it is empty after a move, mirroring
// the post-move author-folder cleanup in §4.5. stopAt bounds the walk so
// cleanup never climbs above the library root.
func CleanEmptyParentDir(dir, stopAt string) {
	for {
		if dir == stopAt || dir == "." || dir == string(filepath.Separator) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
