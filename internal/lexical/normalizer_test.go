package lexical

import (
	"strings"
	"testing"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(new(normalizerTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type normalizerTestSuite struct{}

func (s *normalizerTestSuite) TestStopwordsAndShortTokensAreDropped(c *check.C) {
	n := New(Config{})

	words, bigrams := n.Normalize("The drug use of an Opioid is a RISK-factor, and it is 42% of us.")
	c.Assert(words, check.DeepEquals, []string{"drug", "use", "opioid", "riskfactor"})
	c.Assert(bigrams, check.IsNil)
}

func (s *normalizerTestSuite) TestEnglishStopwordList(c *check.C) {
	stopwords := EnglishStopwords()
	for _, w := range []string{"the", "and", "myself", "because", "would"} {
		c.Assert(stopwords.Contains(w), check.Equals, true, check.Commentf(w))
	}
	for _, w := range []string{"drug", "|", ""} {
		c.Assert(stopwords.Contains(w), check.Equals, false, check.Commentf(w))
	}
}

func (s *normalizerTestSuite) TestExtraStopwordsAndMinLength(c *check.C) {
	n := New(Config{MinTokenLength: 5, ExtraStopwords: []string{" Opioid "}})

	words, _ := n.Normalize("drug opioid crisis epidemic")
	c.Assert(words, check.DeepEquals, []string{"crisis", "epidemic"})
}

func (s *normalizerTestSuite) TestStemming(c *check.C) {
	n := New(Config{Stem: true})

	words, _ := n.Normalize("drugs running connected")
	c.Assert(words, check.DeepEquals, []string{"drug", "run", "connect"})
}

func (s *normalizerTestSuite) TestBigrams(c *check.C) {
	n := New(Config{Bigrams: true})

	words, bigrams := n.Normalize("drug use risk")
	c.Assert(words, check.DeepEquals, []string{"drug", "use", "risk"})
	c.Assert(bigrams, check.DeepEquals, []string{"drug use", "use risk"})

	_, bigrams = n.Normalize("drug")
	c.Assert(bigrams, check.IsNil)
}

func (s *normalizerTestSuite) TestEntityFoldingKeepsSingleTokens(c *check.C) {
	n := New(Config{FoldEntities: true, Bigrams: true})

	words, bigrams := n.Normalize("Heroin use spread quickly across New York City during the decade.")
	c.Assert(len(words) > 0, check.Equals, true)
	for _, w := range words {
		c.Assert(strings.Contains(w, " "), check.Equals, false)
		c.Assert(strings.HasPrefix(w, "_"), check.Equals, false)
	}
	for _, b := range bigrams {
		c.Assert(strings.Fields(b), check.HasLen, 2)
	}
	c.Assert(strings.Join(words, " "), check.Matches, ".*heroin.*spread.*quickly.*decade.*")
}
