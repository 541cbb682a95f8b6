package layers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/providers"
)

type fakeMetadataProvider struct {
	name       string
	candidates []providers.Candidate
	err        error
}

func (f *fakeMetadataProvider) Name() string { return f.name }
func (f *fakeMetadataProvider) Search(ctx context.Context, q providers.Query) ([]providers.Candidate, error) {
	return f.candidates, f.err
}

func TestAPILayerCanProcessOnlyLayerTwoUnlockedNonTerminal(t *testing.T) {
	l := &APILayer{EnabledFlag: true}
	assert.True(t, l.CanProcess(&database.Book{VerificationLayer: 2}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 3}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 2, UserLocked: true}))
	assert.False(t, l.CanProcess(&database.Book{VerificationLayer: 2, Status: database.StatusNeedsAttention}))
}

func TestAPILayerProcessAdvancesWhenNoProvidersConfigured(t *testing.T) {
	l := &APILayer{EnabledFlag: true}
	result := l.Process(context.Background(), &database.Book{Author: "Jane Doe", Title: "The Martian"})
	require.Equal(t, ActionAdvance, result.Action)
	require.NotNil(t, result.NextLayer)
	assert.Equal(t, 4, *result.NextLayer)
}

func TestAPILayerProcessResolvesWhenCandidateMatchesExisting(t *testing.T) {
	provider := &fakeMetadataProvider{name: "audnexus", candidates: []providers.Candidate{
		{Provider: "audnexus", Author: "Jane Doe", Title: "The Martian"},
	}}
	l := &APILayer{EnabledFlag: true, Providers: []providers.MetadataProvider{provider}}

	book := &database.Book{Author: "Jane Doe", Title: "The Martian", VerificationLayer: 2}
	result := l.Process(context.Background(), book)

	assert.Equal(t, ActionResolved, result.Action)
	assert.True(t, result.Verified)
}

func TestAPILayerProcessAdvancesToLayerThreeWhenBelowThreshold(t *testing.T) {
	provider := &fakeMetadataProvider{name: "audnexus", candidates: []providers.Candidate{
		{Provider: "audnexus", Author: "Someone Else", Title: "A Totally Different Book"},
	}}
	l := &APILayer{EnabledFlag: true, Providers: []providers.MetadataProvider{provider}, ConfidenceThreshold: 85}

	book := &database.Book{Author: "Jane Doe", Title: "The Martian", VerificationLayer: 2}
	result := l.Process(context.Background(), book)

	assert.Equal(t, ActionAdvance, result.Action)
	require.NotNil(t, result.NextLayer)
	assert.Equal(t, 3, *result.NextLayer)
}

func TestAPILayerSLTrustFullSkipsAIOnHighConfidenceMatch(t *testing.T) {
	provider := &fakeMetadataProvider{name: "audnexus", candidates: []providers.Candidate{
		{Provider: "audnexus", Author: "Jane Doe", Title: "The Martian Chronicles"},
	}}
	l := &APILayer{
		EnabledFlag: true, Providers: []providers.MetadataProvider{provider},
		ConfidenceThreshold: 70, SLTrustMode: SLTrustFull,
	}

	// Author similarity 1.0, title similarity 0.5: average 75 clears the
	// threshold of 70 without both reaching 0.90.
	book := &database.Book{Author: "Jane Doe", Title: "The Martian", VerificationLayer: 2}
	result := l.Process(context.Background(), book)

	assert.Equal(t, ActionAdvance, result.Action)
	require.NotNil(t, result.NextLayer)
	assert.Equal(t, 4, *result.NextLayer)
}

func TestJaccardSimilarityIdenticalStringsIsOne(t *testing.T) {
	assert.Equal(t, 1.0, jaccardSimilarity("The Martian", "The Martian"))
}

func TestJaccardSimilarityDisjointStringsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, jaccardSimilarity("Apples Oranges", "Grapes Bananas"))
}

func TestPickWinnerPrefersAuthorMajority(t *testing.T) {
	candidates := []providers.Candidate{
		{Author: "Author A", Title: "Book One"},
		{Author: "Author B", Title: "Book Two"},
		{Author: "Author A", Title: "Book One"},
	}
	winner := pickWinner(candidates, "")
	assert.Equal(t, "Author A", winner.Author)
}

func TestPickWinnerFallsBackToCurrentAuthorWithoutMajority(t *testing.T) {
	candidates := []providers.Candidate{
		{Author: "Author A", Title: "Book One"},
		{Author: "Author B", Title: "Book Two"},
	}
	winner := pickWinner(candidates, "Author B")
	assert.Equal(t, "Author B", winner.Author)
}
