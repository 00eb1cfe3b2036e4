package prune

import "github.com/alvmarrod/wiki-weaver/internal/storage"

// LinkFrequencies counts, for every target, how many source documents cite it.
// Duplicates inside one document's observation set count once.
func LinkFrequencies(docs []storage.DocLinks) map[string]int {
	freq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc.Targets))
		for _, target := range doc.Targets {
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			freq[target]++
		}
	}
	return freq
}

// Links keeps only targets cited by at least minFreq documents. Target order
// within a document is preserved and duplicates are collapsed; documents left
// without targets are dropped from the result. Running Links on its own output
// with the same minFreq returns an identical result.
func Links(docs []storage.DocLinks, minFreq int) []storage.DocLinks {
	freq := LinkFrequencies(docs)

	pruned := make([]storage.DocLinks, 0, len(docs))
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc.Targets))
		var kept []string
		for _, target := range doc.Targets {
			if freq[target] < minFreq {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			kept = append(kept, target)
		}

		if len(kept) == 0 {
			continue
		}
		pruned = append(pruned, storage.DocLinks{Source: doc.Source, Targets: kept})
	}
	return pruned
}
