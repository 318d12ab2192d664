package extract

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/relex/store"
)

// MentionExtractor is the arity-1 twin of CandidateExtractor: it
// enumerates the spans each span space proposes per sentence, filters them
// through the matching matcher, and persists the survivors as mentions.
type MentionExtractor struct {
	store    *store.Store
	types    []string
	spaces   []SpanSpace
	matchers []Matcher
}

// NewMentionExtractor validates that types, spaces, and matchers line up
// one-to-one. Individual matchers may be nil, which accepts every span.
// Validation happens before any document is touched.
func NewMentionExtractor(s *store.Store, types []string, spaces []SpanSpace, matchers []Matcher) (*MentionExtractor, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no mention types", ErrConfig)
	}
	if len(spaces) != len(types) {
		return nil, fmt.Errorf("%w: %d span spaces for %d mention types",
			ErrConfig, len(spaces), len(types))
	}
	if matchers == nil {
		matchers = make([]Matcher, len(types))
	}
	if len(matchers) != len(types) {
		return nil, fmt.Errorf("%w: %d matchers for %d mention types",
			ErrConfig, len(matchers), len(types))
	}
	for i, name := range types {
		if name == "" {
			return nil, fmt.Errorf("%w: empty mention type name", ErrConfig)
		}
		if spaces[i] == nil {
			return nil, fmt.Errorf("%w: mention type %q has no span space", ErrConfig, name)
		}
	}

	return &MentionExtractor{
		store:    s,
		types:    types,
		spaces:   spaces,
		matchers: matchers,
	}, nil
}

// Apply runs mention extraction over the given documents. Split in opts is
// ignored; mentions are not partitioned.
func (e *MentionExtractor) Apply(ctx context.Context, docIDs []int64, opts ApplyOptions) (Report, error) {
	return runDocuments(ctx, e.store, "mentions", docIDs, opts, e.extractDocument)
}

// Clear deletes all mentions of the configured types. Candidates built on
// them cascade away with them.
func (e *MentionExtractor) Clear(ctx context.Context) (int64, error) {
	var total int64
	for _, name := range e.types {
		n, err := e.store.DeleteMentions(ctx, name)
		if err != nil {
			return total, fmt.Errorf("clearing mention type %q: %w", name, err)
		}
		total += n
	}
	return total, nil
}

// extractDocument generates one document's mentions for every configured
// type inside the document's transaction.
func (e *MentionExtractor) extractDocument(ctx context.Context, tx *store.Tx, docID int64, opts ApplyOptions) (int64, error) {
	sentences, err := tx.SentencesByDocument(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("reading sentences: %w", err)
	}

	var emitted int64
	for i, name := range e.types {
		if opts.Clear {
			if _, err := tx.DeleteMentionsForDocument(ctx, name, docID); err != nil {
				return emitted, fmt.Errorf("clearing mention type %q: %w", name, err)
			}
		}

		matcher := e.matchers[i]
		for _, sent := range sentences {
			for _, span := range e.spaces[i].Apply(sent) {
				span.Type = name
				if matcher != nil && !matcher(span) {
					continue
				}

				skip := false
				if !opts.Clear {
					exists, err := tx.MentionExists(ctx, docID, name, span.CharStart, span.CharEnd)
					if err != nil {
						return emitted, fmt.Errorf("existence check: %w", err)
					}
					skip = exists
				}
				if !skip {
					inserted, err := tx.InsertMention(ctx, &span)
					if err != nil {
						return emitted, fmt.Errorf("inserting mention: %w", err)
					}
					if inserted {
						emitted++
					}
				}
			}
		}
	}
	return emitted, nil
}
