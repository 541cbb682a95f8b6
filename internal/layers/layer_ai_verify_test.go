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

func TestAIVerifyLayerCanProcessUpToLayerThree(t *testing.T) {
	l := &AIVerifyLayer{EnabledFlag: true}
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 1}))
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 3}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 4}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 3, UserLocked: true}))
}

func TestAIVerifyLayerProcessAdvancesWithoutTextAI(t *testing.T) {
	l := &AIVerifyLayer{EnabledFlag: true}
	result := l.Process(context.Background(), &database.Book{})
	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAIVerifyLayerProcessRetriesOnError(t *testing.T) {
	l := &AIVerifyLayer{EnabledFlag: true, TextAI: &fakeTextAI{err: errors.New("rate limited")}}
	result := l.Process(context.Background(), &database.Book{})
	assert.Equal(t, ActionRetry, result.Action)
}

func TestAIVerifyLayerProcessAdvancesOnEmptyResult(t *testing.T) {
	l := &AIVerifyLayer{EnabledFlag: true, TextAI: &fakeTextAI{result: &providers.TextResult{}}}
	result := l.Process(context.Background(), &database.Book{})
	assert.Equal(t, ActionAdvance, result.Action)
}

func TestAIVerifyLayerProcessResolvesOnUsableResult(t *testing.T) {
	l := &AIVerifyLayer{
		EnabledFlag: true,
		TextAI:      &fakeTextAI{result: &providers.TextResult{Author: "Jane Doe", Title: "The Martian"}},
	}
	book := &database.Book{Author: "Jane Doe", Title: "Old Title"}
	result := l.Process(context.Background(), book)

	require.Equal(t, ActionResolved, result.Action)
	assert.NotNil(t, result.History)
}

func TestAIVerifyLayerBlocksDrasticAuthorChangeWhenProtected(t *testing.T) {
	l := &AIVerifyLayer{
		EnabledFlag:          true,
		TextAI:               &fakeTextAI{result: &providers.TextResult{Author: "Completely Different Person", Title: "Some Book"}},
		ProtectAuthorChanges: true,
	}
	book := &database.Book{Author: "Jane Doe", Title: "Old Title"}
	result := l.Process(context.Background(), book)

	require.Equal(t, ActionResolved, result.Action)
	assert.Equal(t, 0, result.Confidence)
	require.NotNil(t, result.History)
	assert.Contains(t, result.History.ErrorMessage, "drastic author change")
}

func TestAIVerifyLayerAllowsDrasticAuthorChangeWhenTrustTheProcess(t *testing.T) {
	l := &AIVerifyLayer{
		EnabledFlag:          true,
		TextAI:               &fakeTextAI{result: &providers.TextResult{Author: "Completely Different Person", Title: "Some Book"}},
		ProtectAuthorChanges: true,
		TrustTheProcess:      true,
	}
	book := &database.Book{Author: "Jane Doe", Title: "Old Title"}
	result := l.Process(context.Background(), book)

	require.Equal(t, ActionResolved, result.Action)
	assert.NotEqual(t, "drastic author change blocked", result.Message)
}

func TestIsDrasticAuthorChangeDetectsNoOverlap(t *testing.T) {
	assert.True(t, isDrasticAuthorChange("Jane Doe", "Completely Different Person"))
}

func TestIsDrasticAuthorChangeAllowsSameAuthorReordered(t *testing.T) {
	assert.False(t, isDrasticAuthorChange("Doe, Jane", "Jane Doe"))
}

func TestIsDrasticAuthorChangeNeverDrasticWhenCurrentUnknown(t *testing.T) {
	assert.False(t, isDrasticAuthorChange("", "Anyone At All"))
	assert.False(t, isDrasticAuthorChange("unknown", "Anyone At All"))
}
