package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTextAI struct {
	name   string
	result *TextResult
	err    error
}

func (f *fakeTextAI) Name() string { return f.name }
func (f *fakeTextAI) ParseText(ctx context.Context, prompt string) (*TextResult, error) {
	return f.result, f.err
}

type fakeAudioAI struct {
	name   string
	result *AudioAnalysis
	err    error
}

func (f *fakeAudioAI) Name() string { return f.name }
func (f *fakeAudioAI) Analyze(ctx context.Context, clip []byte, mode AudioMode) (*AudioAnalysis, error) {
	return f.result, f.err
}

func TestTextAIChainReturnsFirstSuccess(t *testing.T) {
	failing := &fakeTextAI{name: "gemini", err: errors.New("quota exhausted")}
	succeeding := &fakeTextAI{name: "openrouter", result: &TextResult{Author: "Jane Doe"}}
	chain := TextAIChain{failing, succeeding}

	result, err := chain.ParseText(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Author)
	assert.Equal(t, "gemini", chain.Name())
}

func TestTextAIChainReturnsLastErrorWhenAllFail(t *testing.T) {
	first := &fakeTextAI{name: "gemini", err: errors.New("first failure")}
	second := &fakeTextAI{name: "openrouter", err: errors.New("second failure")}
	chain := TextAIChain{first, second}

	_, err := chain.ParseText(context.Background(), "prompt")
	require.Error(t, err)
	assert.EqualError(t, err, "second failure")
}

func TestTextAIChainNameIsNoneWhenEmpty(t *testing.T) {
	var chain TextAIChain
	assert.Equal(t, "none", chain.Name())
}

func TestAudioAIChainReturnsFirstSuccess(t *testing.T) {
	failing := &fakeAudioAI{name: "primary", err: errors.New("down")}
	succeeding := &fakeAudioAI{name: "gemini", result: &AudioAnalysis{Author: "Jane Doe"}}
	chain := AudioAIChain{failing, succeeding}

	result, err := chain.Analyze(context.Background(), []byte("clip"), AudioModeCredits)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Author)
}

func TestAudioAIChainReturnsLastErrorWhenAllFail(t *testing.T) {
	first := &fakeAudioAI{name: "primary", err: errors.New("first failure")}
	second := &fakeAudioAI{name: "gemini", err: errors.New("second failure")}
	chain := AudioAIChain{first, second}

	_, err := chain.Analyze(context.Background(), []byte("clip"), AudioModeContent)
	require.Error(t, err)
	assert.EqualError(t, err, "second failure")
}
