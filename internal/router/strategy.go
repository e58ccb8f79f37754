package router

import (
	"strings"

	"github.com/jeanpaul/relay/internal/store"
)

// KeywordStrategy is the default scoring formula:
//
//   - each declared keyword appearing as a query term scores KeywordWeight
//   - each query term (3+ chars, not a stopword) found as a substring of the
//     description scores DescriptionWeight
//   - the agent's exact name appearing as a query term scores NameBonus,
//     sized to dominate every other factor
type KeywordStrategy struct {
	KeywordWeight     float64
	DescriptionWeight float64
	NameBonus         float64
}

// DefaultStrategy returns the weights documented above: 3 / 1 / 100.
func DefaultStrategy() KeywordStrategy {
	return KeywordStrategy{KeywordWeight: 3, DescriptionWeight: 1, NameBonus: 100}
}

func (s KeywordStrategy) Score(query string, def *store.Definition) Match {
	terms := queryTerms(query)
	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		termSet[t] = true
	}

	var m Match
	for _, kw := range def.Keywords {
		if termSet[strings.ToLower(kw)] {
			m.Score += s.KeywordWeight
			m.MatchedKeywords = append(m.MatchedKeywords, kw)
		}
	}

	desc := strings.ToLower(def.Description)
	for _, t := range terms {
		if len(t) < 3 || stopWords[t] {
			continue
		}
		if strings.Contains(desc, t) {
			m.Score += s.DescriptionWeight
		}
	}

	if termSet[strings.ToLower(def.Name)] {
		m.Score += s.NameBonus
		m.NameMatch = true
	}
	return m
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "can": true, "you": true, "please": true, "how": true,
	"what": true, "why": true, "are": true, "was": true, "does": true,
}

// queryTerms lowercases and strips surrounding punctuation from each word.
func queryTerms(query string) []string {
	words := strings.Fields(query)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:()[]{}\"'"))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
