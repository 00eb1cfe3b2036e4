package lexical

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/blevesearch/bleve/analysis/lang/en"
	mapset "github.com/deckarep/golang-set/v2"
)

// EnglishStopwords returns the English stop word list shipped with bleve.
// The list uses "|" to start comments, which may trail a word.
func EnglishStopwords() mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()

	scanner := bufio.NewScanner(bytes.NewReader(en.EnglishStopWords))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '|'); i >= 0 {
			line = line[:i]
		}
		for _, word := range strings.Fields(line) {
			set.Add(strings.ToLower(word))
		}
	}
	return set
}
