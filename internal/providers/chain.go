package providers

import "context"

// TextAIChain tries each text AI provider in order and returns the first
// one that answers without error, the "for p in chain { if r := p(req);
// r != nil { return r } }" pattern spec.md §9 calls for instead of an
// inheritance hierarchy.
type TextAIChain []TextAIProvider

func (c TextAIChain) Name() string {
	if len(c) == 0 {
		return "none"
	}
	return c[0].Name()
}

func (c TextAIChain) ParseText(ctx context.Context, prompt string) (*TextResult, error) {
	var lastErr error
	for _, p := range c {
		result, err := p.ParseText(ctx, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// AudioAIChain is the audio-analysis analog of TextAIChain.
type AudioAIChain []AudioAIProvider

func (c AudioAIChain) Name() string {
	if len(c) == 0 {
		return "none"
	}
	return c[0].Name()
}

func (c AudioAIChain) Analyze(ctx context.Context, clip []byte, mode AudioMode) (*AudioAnalysis, error) {
	var lastErr error
	for _, p := range c {
		result, err := p.Analyze(ctx, clip, mode)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
