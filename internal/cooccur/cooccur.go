// Package cooccur generates token co-occurrence pairs from a sliding window.
package cooccur

// Pair is an unordered token pair stored in canonical (sorted) order
type Pair struct {
	A string
	B string
}

// NewPair builds the canonical pair for two tokens
func NewPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// Edges slides a window of the given size over tokens and emits one pair for
// every two distinct positions inside each window, including non-adjacent
// positions. Windows overlap, so a pair can be emitted several times; callers
// sum multiplicities. Fewer tokens than the window size yields no pairs.
func Edges(tokens []string, window int) []Pair {
	if window < 2 || len(tokens) < window {
		return nil
	}

	windows := len(tokens) - window + 1
	pairs := make([]Pair, 0, windows*window*(window-1)/2)
	for i := 0; i < windows; i++ {
		span := tokens[i : i+window]
		for j := 0; j < len(span); j++ {
			for k := j + 1; k < len(span); k++ {
				pairs = append(pairs, NewPair(span[j], span[k]))
			}
		}
	}
	return pairs
}

// Count returns the multiplicity of every pair emitted by Edges, plus the
// pairs in first-emitted order so callers can iterate deterministically.
func Count(tokens []string, window int) (map[Pair]int, []Pair) {
	counts := make(map[Pair]int)
	var order []Pair
	for _, p := range Edges(tokens, window) {
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}
	return counts, order
}
