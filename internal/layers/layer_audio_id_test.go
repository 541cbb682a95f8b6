package layers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
)

type fakeClipExtractor struct {
	clip []byte
	err  error
}

func (f *fakeClipExtractor) FirstClip(ctx context.Context, bookPath string, seconds int) ([]byte, error) {
	return f.clip, f.err
}

func (f *fakeClipExtractor) MiddleClip(ctx context.Context, bookPath string, percentIn int, offsetCap time.Duration, clipSeconds int) ([]byte, error) {
	return f.clip, f.err
}

type fakeAudioIdentifier struct {
	result *providers.AudioIDResult
	err    error
}

func (f *fakeAudioIdentifier) IdentifyAudio(ctx context.Context, clip []byte, folderHint string) (*providers.AudioIDResult, error) {
	return f.result, f.err
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, clip []byte) (string, error) {
	return f.transcript, f.err
}

type fakeTextAI struct {
	result *providers.TextResult
	err    error
}

func (f *fakeTextAI) Name() string { return "fake-text-ai" }
func (f *fakeTextAI) ParseText(ctx context.Context, prompt string) (*providers.TextResult, error) {
	return f.result, f.err
}

func TestAudioIDLayerCanProcessOnlyUnstartedOrLayerOne(t *testing.T) {
	l := &AudioIDLayer{EnabledFlag: true}
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 0}))
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 1}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 2}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 1, UserLocked: true}))
}

func TestAudioIDLayerProcessAdvancesWithoutClipsOrIdentifier(t *testing.T) {
	l := &AudioIDLayer{EnabledFlag: true}
	result := l.Process(context.Background(), &database.Book{Path: "/lib/book"})
	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAudioIDLayerProcessResolvesWhenIdentificationConfirmsExisting(t *testing.T) {
	l := &AudioIDLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		Identifier: &fakeAudioIdentifier{result: &providers.AudioIDResult{
			Author: "Jane Doe", Title: "The Martian", Confidence: 90,
		}},
	}
	book := &database.Book{Path: "/lib/Jane Doe - The Martian", Author: "Jane Doe", Title: "The Martian"}
	result := l.Process(context.Background(), book)

	assert.Equal(t, ActionResolved, result.Action)
	assert.True(t, result.Verified)
}

func TestAudioIDLayerProcessAdvancesToAPIWhenMetadataChanges(t *testing.T) {
	l := &AudioIDLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		Identifier: &fakeAudioIdentifier{result: &providers.AudioIDResult{
			Author: "Jane Doe", Title: "The Martian", Confidence: 80,
		}},
	}
	// Author overlaps the folder hint (so the audio-ID result isn't
	// rejected outright) but the title differs from the book's current
	// metadata, so the layer should still advance rather than resolve.
	book := &database.Book{Path: "/lib/Jane Doe - Old Title", Author: "Jane Doe", Title: "Old Title"}
	result := l.Process(context.Background(), book)

	require.Equal(t, ActionAdvance, result.Action)
	require.NotNil(t, result.NextLayer)
	assert.Equal(t, 3, *result.NextLayer)
}

func TestAudioIDLayerProcessRetriesOnQuotaExhaustedError(t *testing.T) {
	l := &AudioIDLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		Identifier:  &fakeAudioIdentifier{err: pipeerr.New(pipeerr.QuotaExhausted, "primary", errors.New("quota: 0"))},
	}
	book := &database.Book{Path: "/lib/Jane Doe - The Martian"}
	result := l.Process(context.Background(), book)

	assert.Equal(t, ActionRetry, result.Action)
}

func TestAudioIDLayerProcessFallsBackToTranscriptionOnOtherErrors(t *testing.T) {
	l := &AudioIDLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		Identifier:  &fakeAudioIdentifier{err: errors.New("service unavailable")},
		Transcriber: &fakeTranscriber{transcript: "this is jane doe reading the martian"},
		TextAI:      &fakeTextAI{result: &providers.TextResult{Author: "Jane Doe", Title: "The Martian"}},
	}
	book := &database.Book{Path: "/lib/Jane Doe - The Martian"}
	result := l.Process(context.Background(), book)

	require.Equal(t, ActionAdvance, result.Action)
	require.NotNil(t, result.NextLayer)
	assert.Equal(t, 3, *result.NextLayer)
}

func TestAudioIDLayerProcessAdvancesWhenNoFallbackConfigured(t *testing.T) {
	l := &AudioIDLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		Identifier:  &fakeAudioIdentifier{err: errors.New("service unavailable")},
	}
	book := &database.Book{Path: "/lib/Jane Doe - The Martian"}
	result := l.Process(context.Background(), book)

	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAudioIDLayerProcessAdvancesWhenNoAudioFile(t *testing.T) {
	l := &AudioIDLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{err: errors.New("no audio files found")},
		Identifier:  &fakeAudioIdentifier{},
	}
	result := l.Process(context.Background(), &database.Book{Path: "/lib/book"})
	assert.Equal(t, ActionAdvance, result.Action)
}
