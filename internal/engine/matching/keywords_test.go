package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordsFiltersAndDedupes(t *testing.T) {
	words := Keywords("The sanctions screening and sanctions list screening for 2024")

	assert.Equal(t, []string{"sanctions", "screening", "list"}, words)
}

func TestKeywordsDropsShortAndNumericTokens(t *testing.T) {
	words := Keywords("a an ID 42 KYC onboarding")

	assert.NotContains(t, words, "42")
	assert.NotContains(t, words, "id")
	assert.Contains(t, words, "kyc")
	assert.Contains(t, words, "onboarding")
}

func TestKeywordSetSpansFeatures(t *testing.T) {
	set := KeywordSet([]string{"automated sanctions screening", "case management"})

	assert.True(t, set["sanctions"])
	assert.True(t, set["case"])
	assert.True(t, set["management"])
	assert.False(t, set["the"])
}
