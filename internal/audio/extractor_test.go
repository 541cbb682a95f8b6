package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestFirstAudioFileOrdersNumericNamesNaturally(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "10.mp3")
	touch(t, dir, "2.mp3")
	touch(t, dir, "1.mp3")
	touch(t, dir, "cover.jpg")

	first, err := firstAudioFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1.mp3"), first)
}

func TestFirstAudioFileIgnoresNonAudioExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "notes.txt")
	touch(t, dir, "chapter-01.m4b")

	first, err := firstAudioFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chapter-01.m4b"), first)
}

func TestFirstAudioFileErrorsWhenNoAudioPresent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "cover.jpg")

	_, err := firstAudioFile(dir)
	assert.Error(t, err)
}

func TestNewExtractorDefaults(t *testing.T) {
	e := NewExtractor()
	assert.Equal(t, "ffmpeg", e.ffmpeg())
	assert.Equal(t, "ffprobe", e.ffprobe())
	assert.Equal(t, 60.0, e.timeout().Seconds())
}
