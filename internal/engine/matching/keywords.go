package matching

import (
	"strings"
	"unicode"

	prose "github.com/jdkato/prose/v2"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "are": true, "was": true, "has": true, "have": true,
	"not": true, "but": true, "from": true, "into": true, "over": true,
	"below": true, "above": true, "scored": true, "gap": true, "span": true,
	"compliance": true, "section": true, "control": true, "evidence": true,
	"submitted": true, "place": true, "policy": true, "your": true,
}

// Keywords tokenizes free text into lowercase content keywords, dropping
// stopwords, numerals and short tokens. Order of first occurrence is kept so
// overlap fractions stay deterministic.
func Keywords(text string) []string {
	var tokens []string

	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
		prose.WithSegmentation(false),
	)
	if err == nil {
		for _, tok := range doc.Tokens() {
			tokens = append(tokens, tok.Text)
		}
	} else {
		// Tokenizer failure degrades to whitespace splitting.
		tokens = strings.Fields(text)
	}

	seen := make(map[string]bool)
	var out []string
	for _, tok := range tokens {
		word := normalizeToken(tok)
		if word == "" || stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}

	return out
}

// KeywordSet builds the lookup set for a solution's feature list.
func KeywordSet(features []string) map[string]bool {
	set := make(map[string]bool)
	for _, feature := range features {
		for _, word := range Keywords(feature) {
			set[word] = true
		}
	}
	return set
}

func normalizeToken(tok string) string {
	word := strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	if len(word) < 3 {
		return ""
	}
	for _, r := range word {
		if unicode.IsDigit(r) {
			return ""
		}
	}
	return word
}
