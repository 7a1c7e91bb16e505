package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Tokenize splits a product name into its distinct case-folded, whitespace
// separated tokens, in order of first appearance.
func Tokenize(name string) []string {
	// Casers carry state and must not be shared between goroutines
	folded := cases.Fold().String(norm.NFKC.String(name))

	fields := strings.Fields(folded)
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenOverlap returns |shared| / |focal| over token sets.
func tokenOverlap(focal, candidate []string) float64 {
	if len(focal) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(candidate))
	for _, t := range candidate {
		set[t] = struct{}{}
	}
	shared := 0
	for _, t := range focal {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(focal))
}
