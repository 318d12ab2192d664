// Package segment cuts raw document text into sentences while preserving
// each sentence's byte offset in the original text. Offsets matter
// downstream: span positions inside a sentence become absolute document
// positions by adding the sentence offset, and that arithmetic only works
// if segmentation never rewrites the text it cuts.
package segment

import "strings"

// Span is one sentence with its byte offset into the original text.
type Span struct {
	Text   string
	Offset int
}

// Sentences splits text at sentence-final punctuation followed by
// whitespace, and at line breaks. It is a heuristic tokeniser: no
// abbreviation handling, no quote balancing. Leading and trailing
// whitespace is trimmed from each sentence with the offset adjusted, so
// Text is always a verbatim substring of the input starting at Offset.
func Sentences(text string) []Span {
	var spans []Span
	start := 0

	emit := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimLeft(raw, " \t")
		offset := start + len(raw) - len(trimmed)
		trimmed = strings.TrimRight(trimmed, " \t\r")
		if trimmed != "" {
			spans = append(spans, Span{Text: trimmed, Offset: offset})
		}
		start = end
	}

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			emit(i)
			start = i + 1
		case '.', '?', '!':
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				emit(i + 1)
			}
		}
	}
	emit(len(text))
	return spans
}
