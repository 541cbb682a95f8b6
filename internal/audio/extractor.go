// Package audio extracts short speech samples from a book's first audio
// file by shelling out to ffmpeg/ffprobe, the way the original identification
// pipeline did it: no pure-Go audio codec library is anywhere in the
// dependency pack, so this stays a thin os/exec wrapper.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// audioExtensions mirrors the set the scanner/resolver recognize.
var audioExtensions = map[string]bool{
	".m4b": true, ".mp3": true, ".m4a": true, ".flac": true,
	".ogg": true, ".opus": true, ".wma": true, ".aac": true,
}

var naturalSplit = regexp.MustCompile(`\d+|\D+`)

// naturalSortKey lets "2.mp3" sort before "10.mp3" the way a listener would
// expect, instead of lexicographic "10.mp3" < "2.mp3".
func naturalSortKey(name string) []string {
	return naturalSplit.FindAllString(strings.ToLower(name), -1)
}

// firstAudioFile returns the audio file that sorts first in dir by natural
// filename order, since credits are typically announced in the first file.
func firstAudioFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading book folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no audio files found in %s", dir)
	}
	sort.Slice(files, func(i, j int) bool {
		a, b := naturalSortKey(files[i]), naturalSortKey(files[j])
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				an, aerr := strconv.Atoi(a[k])
				bn, berr := strconv.Atoi(b[k])
				if aerr == nil && berr == nil {
					return an < bn
				}
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return filepath.Join(dir, files[0]), nil
}

// Extractor implements layers.ClipExtractor via ffmpeg/ffprobe subprocess
// calls, grounded on utils/audio.py's extract_audio_sample/
// extract_audio_sample_from_middle.
type Extractor struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

// NewExtractor returns an Extractor using "ffmpeg"/"ffprobe" from PATH and a
// 60s subprocess timeout unless overridden.
func NewExtractor() *Extractor {
	return &Extractor{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Timeout: 60 * time.Second}
}

func (e *Extractor) ffmpeg() string {
	if e.FFmpegPath != "" {
		return e.FFmpegPath
	}
	return "ffmpeg"
}

func (e *Extractor) ffprobe() string {
	if e.FFprobePath != "" {
		return e.FFprobePath
	}
	return "ffprobe"
}

func (e *Extractor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 60 * time.Second
}

// extract runs ffmpeg against the book's first audio file starting at
// startSeconds for durationSeconds, downsampled to mono 16kHz speech-grade
// mp3, and returns the resulting bytes.
func (e *Extractor) extract(ctx context.Context, bookPath string, startSeconds float64, durationSeconds int) ([]byte, error) {
	src, err := firstAudioFile(bookPath)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "clip-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("creating temp clip file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	args := []string{"-y"}
	if startSeconds > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.2f", startSeconds))
	}
	args = append(args,
		"-i", src,
		"-t", strconv.Itoa(durationSeconds),
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "64k",
		"-ar", "16000",
		"-ac", "1",
		tmpPath,
	)

	cmd := exec.CommandContext(ctx, e.ffmpeg(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg extraction failed: %w: %s", err, stderr.String())
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading extracted clip: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty clip")
	}
	return data, nil
}

// FirstClip extracts the opening seconds of the book's first audio file,
// where the narrator typically announces title/author/narrator credits.
func (e *Extractor) FirstClip(ctx context.Context, bookPath string, seconds int) ([]byte, error) {
	return e.extract(ctx, bookPath, 0, seconds)
}

// probeDuration shells out to ffprobe to read the first audio file's total
// duration in seconds.
func (e *Extractor) probeDuration(ctx context.Context, src string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe duration: %w", err)
	}
	return duration, nil
}

// MiddleClip extracts a clip starting percentIn% into the book's total
// runtime, capped at offsetCap, skipping past intros/credits into actual
// narration content for last-resort content analysis.
func (e *Extractor) MiddleClip(ctx context.Context, bookPath string, percentIn int, offsetCap time.Duration, clipSeconds int) ([]byte, error) {
	src, err := firstAudioFile(bookPath)
	if err != nil {
		return nil, err
	}

	total, err := e.probeDuration(ctx, src)
	if err != nil {
		return nil, err
	}

	start := total * float64(percentIn) / 100
	if cap := offsetCap.Seconds(); cap > 0 && start > cap {
		start = cap
	}
	if start+float64(clipSeconds) > total {
		start = total - float64(clipSeconds) - 10
		if start < 0 {
			start = 0
		}
	}

	return e.extract(ctx, bookPath, start, clipSeconds)
}
