// Package lexical converts plain text into the token and bigram sequences the
// graph assembler consumes.
package lexical

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/blevesearch/go-porterstemmer"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
	"github.com/sirupsen/logrus"
)

var (
	nonLetterRegex       = regexp.MustCompile(`[^a-z\s]`)
	nonLetterEntityRegex = regexp.MustCompile(`[^a-z_\s]`)
)

// Config holds the normalizer settings
type Config struct {
	// Tokens shorter than this are dropped. Defaults to 3.
	MinTokenLength int

	// Extra words dropped on top of the English list.
	ExtraStopwords []string

	// Join multi-word named entities with "_" so they survive as one token.
	FoldEntities bool

	// Reduce tokens to their Porter stem.
	Stem bool

	// Emit adjacent token pairs as bigrams.
	Bigrams bool

	// Logger to use. Defaults to an output-discarding logger.
	Logger *logrus.Entry
}

// Normalizer implements the lexical normalization collaborator
type Normalizer struct {
	cfg       Config
	stopwords mapset.Set[string]
	strip     *regexp.Regexp
}

// New creates a Normalizer
func New(cfg Config) *Normalizer {
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	stopwords := EnglishStopwords()
	for _, w := range cfg.ExtraStopwords {
		stopwords.Add(strings.ToLower(strings.TrimSpace(w)))
	}

	strip := nonLetterRegex
	if cfg.FoldEntities {
		strip = nonLetterEntityRegex
	}

	return &Normalizer{cfg: cfg, stopwords: stopwords, strip: strip}
}

// Normalize returns the cleaned token sequence of text and, when enabled, the
// sequence of adjacent token pairs joined by a single space
func (n *Normalizer) Normalize(text string) ([]string, []string) {
	if n.cfg.FoldEntities {
		folded, err := foldEntities(text)
		if err != nil {
			n.cfg.Logger.WithError(err).Warn("Entity folding failed, using raw text")
		} else {
			text = folded
		}
	}

	text = n.strip.ReplaceAllString(strings.ToLower(text), "")

	var words []string
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, "_")
		if len(tok) < n.cfg.MinTokenLength || n.stopwords.Contains(tok) {
			continue
		}
		if n.cfg.Stem && !strings.Contains(tok, "_") {
			tok = porterstemmer.StemString(tok)
		}
		words = append(words, tok)
	}

	if !n.cfg.Bigrams {
		return words, nil
	}
	return words, Bigrams(words)
}

// Bigrams joins each pair of adjacent tokens with a single space
func Bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	bigrams := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		bigrams = append(bigrams, tokens[i]+" "+tokens[i+1])
	}
	return bigrams
}

// foldEntities replaces each multi-word named entity in text with its words
// joined by "_"
func foldEntities(text string) (string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
	)
	if err != nil {
		return "", fmt.Errorf("entity recognition: %w", err)
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var replacements []string
	for _, ent := range doc.Entities() {
		if !strings.Contains(ent.Text, " ") || !seen.Add(ent.Text) {
			continue
		}
		replacements = append(replacements, ent.Text, strings.Join(strings.Fields(ent.Text), "_"))
	}
	if len(replacements) == 0 {
		return text, nil
	}
	return strings.NewReplacer(replacements...).Replace(text), nil
}
