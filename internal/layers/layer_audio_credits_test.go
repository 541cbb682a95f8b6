package layers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/providers"
)

type fakeAudioAI struct {
	result *providers.AudioAnalysis
	err    error
}

func (f *fakeAudioAI) Name() string { return "fake-audio-ai" }
func (f *fakeAudioAI) Analyze(ctx context.Context, clip []byte, mode providers.AudioMode) (*providers.AudioAnalysis, error) {
	return f.result, f.err
}

func TestAudioCreditsLayerCanProcessUpToLayerFour(t *testing.T) {
	l := &AudioCreditsLayer{EnabledFlag: true}
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 2}))
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 4}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 5}))
}

func TestAudioCreditsLayerProcessAdvancesWithoutDependencies(t *testing.T) {
	l := &AudioCreditsLayer{EnabledFlag: true}
	result := l.Process(context.Background(), &database.Book{Path: "/lib/book"})
	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAudioCreditsLayerProcessAdvancesWhenNoAudioFile(t *testing.T) {
	l := &AudioCreditsLayer{EnabledFlag: true, Clips: &fakeClipExtractor{err: errors.New("no audio")}, AudioAI: &fakeAudioAI{}}
	result := l.Process(context.Background(), &database.Book{Path: "/lib/book"})
	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAudioCreditsLayerProcessRetriesOnAnalysisError(t *testing.T) {
	l := &AudioCreditsLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		AudioAI:     &fakeAudioAI{err: errors.New("rate limited")},
	}
	result := l.Process(context.Background(), &database.Book{Path: "/lib/book"})
	assert.Equal(t, ActionRetry, result.Action)
}

func TestAudioCreditsLayerProcessAdvancesWhenNothingNew(t *testing.T) {
	l := &AudioCreditsLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		AudioAI:     &fakeAudioAI{result: &providers.AudioAnalysis{}},
	}
	result := l.Process(context.Background(), &database.Book{Path: "/lib/book"})
	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAudioCreditsLayerProcessResolvesWhenCreditsIdentifyBook(t *testing.T) {
	l := &AudioCreditsLayer{
		EnabledFlag: true,
		Clips:       &fakeClipExtractor{clip: []byte("audio")},
		AudioAI:     &fakeAudioAI{result: &providers.AudioAnalysis{Author: "Jane Doe", Title: "The Martian", Narrator: "John Smith"}},
	}
	book := &database.Book{Path: "/lib/book"}
	result := l.Process(context.Background(), book)

	require.Equal(t, ActionResolved, result.Action)
	require.NotNil(t, result.History)
	assert.Equal(t, "Jane Doe", result.History.NewAuthor)
	assert.Equal(t, "John Smith", result.History.NewNarrator)
}
