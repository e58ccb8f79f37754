package aggregate

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// Comparator decides whether two answers to the same query diverge.
// The heuristic is deliberately pluggable; DiffComparator is the default.
type Comparator interface {
	Compare(primary, secondary string) (divergent bool, overlap float64, note string)
}

// DiffComparator flags divergence when the secondary answer shares less
// than MinOverlap of the primary's significant words. The note carries an
// edit count from a line diff so a human can see how far apart they are.
type DiffComparator struct {
	MinOverlap float64
}

func NewDiffComparator() DiffComparator {
	return DiffComparator{MinOverlap: 0.3}
}

func (c DiffComparator) Compare(primary, secondary string) (bool, float64, string) {
	words := significantWords(primary, 30)
	if len(words) == 0 {
		return false, 1.0, ""
	}

	secondaryLower := strings.ToLower(secondary)
	shared := 0
	for _, w := range words {
		if strings.Contains(secondaryLower, w) {
			shared++
		}
	}
	overlap := float64(shared) / float64(len(words))

	edits := myers.ComputeEdits(span.URIFromPath("primary"), primary, secondary)
	note := fmt.Sprintf("%.0f%% term overlap, %d differing spans", overlap*100, len(edits))

	return overlap < c.MinOverlap, overlap, note
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "have": true, "has": true, "had": true, "this": true,
	"that": true, "these": true, "those": true, "will": true, "would": true,
	"should": true, "could": true, "can": true, "not": true, "you": true,
}

func significantWords(text string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(text) {
		word = strings.ToLower(strings.Trim(word, ".,!?;:()[]{}\"'`"))
		if len(word) < 4 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) >= max {
			break
		}
	}
	return out
}
