// Package analysis runs named-entity recognition over stored posts.
package analysis

import (
	"context"
	"strings"
)

// Token is one token-classification result. Sub-word pieces carry a "##"
// prefix on Word.
type Token struct {
	Word   string  `json:"word"`
	Entity string  `json:"entity"`
	Score  float64 `json:"score"`
}

// TextAnalyzer classifies the tokens of a text.
type TextAnalyzer interface {
	Infer(ctx context.Context, text string) ([]Token, error)
}

const subTokenPrefix = "##"

// ReconstructWords joins "##" sub-tokens onto the preceding token. A merged
// word keeps the entity of its first piece and the highest score of all its
// pieces. A leading sub-token with nothing to attach to starts a word of its
// own.
func ReconstructWords(tokens []Token) []Token {
	var words []Token
	var current *Token

	for _, tok := range tokens {
		if piece, ok := strings.CutPrefix(tok.Word, subTokenPrefix); ok && current != nil {
			current.Word += piece
			current.Score = max(current.Score, tok.Score)
			continue
		}

		if current != nil && current.Word != "" {
			words = append(words, *current)
		}
		next := tok
		next.Word = strings.TrimPrefix(next.Word, subTokenPrefix)
		current = &next
	}

	if current != nil && current.Word != "" {
		words = append(words, *current)
	}
	return words
}

// MergeResults unions the words of two models. When both report a word, the
// second model's entity and score win. Words keep the position of their
// first appearance.
func MergeResults(first, second []Token) []Token {
	index := make(map[string]int)
	var merged []Token

	for _, results := range [][]Token{first, second} {
		for _, tok := range results {
			if i, ok := index[tok.Word]; ok {
				merged[i] = tok
				continue
			}
			index[tok.Word] = len(merged)
			merged = append(merged, tok)
		}
	}
	return merged
}
