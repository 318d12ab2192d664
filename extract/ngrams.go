package extract

import (
	"strings"
	"unicode"

	"github.com/brunobiangulo/relex/store"
)

// SpanSpace enumerates the proposed spans of one sentence. Implementations
// must be pure and deterministic: the same sentence always yields the same
// spans in the same order.
type SpanSpace interface {
	Apply(sent store.Sentence) []store.Mention
}

// Ngrams proposes every token n-gram of a sentence from one token up to
// NMax tokens. Unigrams containing a split token additionally propose the
// fragments on either side of its first occurrence, so "BC546-16" also
// yields "BC546" and "16". Emitted mentions carry absolute character
// offsets with an inclusive end and no type or id; the extractor fills in
// the type.
type Ngrams struct {
	// NMax is the largest n-gram length. Zero means 3.
	NMax int

	// SplitTokens are the characters unigrams are additionally split on.
	// Nil means "-" and "/".
	SplitTokens []string
}

func (g Ngrams) nMax() int {
	if g.NMax <= 0 {
		return 3
	}
	return g.NMax
}

func (g Ngrams) splitTokens() []string {
	if g.SplitTokens == nil {
		return []string{"-", "/"}
	}
	return g.SplitTokens
}

// token is a word with its offsets relative to the sentence text.
type token struct {
	text  string
	start int // first byte
	end   int // last byte, inclusive
}

// tokenize splits sentence text on whitespace, tracking offsets.
func tokenize(text string) []token {
	var toks []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{text: text[start:i], start: start, end: i - 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: text[start:], start: start, end: len(text) - 1})
	}
	return toks
}

// Apply enumerates the sentence's n-grams, longest first per start token.
func (g Ngrams) Apply(sent store.Sentence) []store.Mention {
	toks := tokenize(sent.Text)
	nMax := g.nMax()

	var spans []store.Mention
	for i := range toks {
		limit := nMax
		if rest := len(toks) - i; rest < limit {
			limit = rest
		}
		for n := limit; n >= 1; n-- {
			first, last := toks[i], toks[i+n-1]
			spans = append(spans, store.Mention{
				DocumentID: sent.DocumentID,
				SentenceID: sent.ID,
				CharStart:  sent.CharOffset + first.start,
				CharEnd:    sent.CharOffset + last.end,
				Text:       sent.Text[first.start : last.end+1],
			})
			if n == 1 {
				spans = append(spans, g.splitSpans(sent, first)...)
			}
		}
	}
	return spans
}

// splitSpans proposes the fragments on either side of the first split
// token inside a unigram. Fragments may be empty when the token leads or
// trails the word; empty fragments are not proposed.
func (g Ngrams) splitSpans(sent store.Sentence, tok token) []store.Mention {
	idx, width := -1, 0
	for _, st := range g.splitTokens() {
		if st == "" {
			continue
		}
		if i := strings.Index(tok.text, st); i >= 0 && (idx < 0 || i < idx) {
			idx, width = i, len(st)
		}
	}
	if idx < 0 {
		return nil
	}

	var spans []store.Mention
	if left := tok.text[:idx]; left != "" {
		spans = append(spans, store.Mention{
			DocumentID: sent.DocumentID,
			SentenceID: sent.ID,
			CharStart:  sent.CharOffset + tok.start,
			CharEnd:    sent.CharOffset + tok.start + idx - 1,
			Text:       left,
		})
	}
	if right := tok.text[idx+width:]; right != "" {
		spans = append(spans, store.Mention{
			DocumentID: sent.DocumentID,
			SentenceID: sent.ID,
			CharStart:  sent.CharOffset + tok.start + idx + width,
			CharEnd:    sent.CharOffset + tok.end,
			Text:       right,
		})
	}
	return spans
}
