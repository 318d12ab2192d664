package extract

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/relex/store"
)

// CandidateExtractor enumerates relation candidates: for each document and
// relation schema it forms the Cartesian product of per-role mention
// lists, filters it, and persists the survivors.
type CandidateExtractor struct {
	store      *store.Store
	schemas    []store.RelationDef
	throttlers []Throttler
	policy     FilterPolicy
}

// NewCandidateExtractor validates the configuration and registers each
// relation schema with the store. throttlers may be nil (no throttling);
// a non-nil slice must have one entry per schema, where individual entries
// may be nil. All validation happens here, before any document is touched.
func NewCandidateExtractor(ctx context.Context, s *store.Store, schemas []store.RelationDef, throttlers []Throttler, policy FilterPolicy) (*CandidateExtractor, error) {
	if len(schemas) == 0 {
		return nil, fmt.Errorf("%w: no relation schemas", ErrConfig)
	}
	if throttlers == nil {
		throttlers = make([]Throttler, len(schemas))
	}
	if len(throttlers) != len(schemas) {
		return nil, fmt.Errorf("%w: %d throttlers for %d relation schemas",
			ErrConfig, len(throttlers), len(schemas))
	}
	for _, schema := range schemas {
		if len(schema.Roles) == 0 {
			return nil, fmt.Errorf("%w: relation %q has no roles", ErrConfig, schema.Name)
		}
		for _, role := range schema.Roles {
			if role.MentionType == "" {
				return nil, fmt.Errorf("%w: relation %q role %q has no mention type",
					ErrConfig, schema.Name, role.Name)
			}
		}
		if err := s.RegisterRelation(ctx, schema); err != nil {
			return nil, fmt.Errorf("%w: registering relation %q: %v", ErrConfig, schema.Name, err)
		}
	}

	return &CandidateExtractor{
		store:      s,
		schemas:    schemas,
		throttlers: throttlers,
		policy:     policy,
	}, nil
}

// Apply runs candidate generation over the given documents and returns the
// aggregate report. Each document is processed by exactly one worker in
// its own transaction; failures are isolated per document.
func (e *CandidateExtractor) Apply(ctx context.Context, docIDs []int64, opts ApplyOptions) (Report, error) {
	return runDocuments(ctx, e.store, "candidates", docIDs, opts, e.extractDocument)
}

// Clear deletes the configured relations' candidates within a split.
func (e *CandidateExtractor) Clear(ctx context.Context, split int) (int64, error) {
	var total int64
	for _, schema := range e.schemas {
		n, err := e.store.DeleteCandidates(ctx, schema.Name, split)
		if err != nil {
			return total, fmt.Errorf("clearing relation %q: %w", schema.Name, err)
		}
		total += n
	}
	return total, nil
}

// ClearAll deletes every registered relation's candidates within a split,
// configured here or not.
func (e *CandidateExtractor) ClearAll(ctx context.Context, split int) (int64, error) {
	return e.store.DeleteAllCandidates(ctx, split)
}

// extractDocument generates one document's candidates for every schema.
// Reads and writes share the per-document transaction.
func (e *CandidateExtractor) extractDocument(ctx context.Context, tx *store.Tx, docID int64, opts ApplyOptions) (int64, error) {
	var emitted int64
	for i, schema := range e.schemas {
		if opts.Clear {
			if _, err := tx.DeleteCandidatesForDocument(ctx, schema.Name, opts.Split, docID); err != nil {
				return emitted, fmt.Errorf("clearing %q: %w", schema.Name, err)
			}
		}

		n, err := e.extractRelation(ctx, tx, docID, schema, e.throttlers[i], opts)
		if err != nil {
			return emitted, fmt.Errorf("relation %q: %w", schema.Name, err)
		}
		emitted += n
	}
	return emitted, nil
}

// extractRelation walks the filtered Cartesian product for one schema.
// The product is enumerated lazily with an index odometer; nothing beyond
// the per-role mention lists is materialized.
func (e *CandidateExtractor) extractRelation(ctx context.Context, tx *store.Tx, docID int64, schema store.RelationDef, throttler Throttler, opts ApplyOptions) (int64, error) {
	arity := len(schema.Roles)

	// Per-role mention lists, ordered by id. The ordering makes the
	// symmetric tie-break deterministic across runs and parallelism
	// degrees.
	lists := make([][]store.Mention, arity)
	for j, role := range schema.Roles {
		mentions, err := tx.MentionsByDocument(ctx, docID, role.MentionType)
		if err != nil {
			return 0, fmt.Errorf("reading %q mentions: %w", role.MentionType, err)
		}
		if len(mentions) == 0 {
			return 0, nil // empty product
		}
		lists[j] = mentions
	}

	var emitted int64
	idx := make([]int, arity)
	args := make([]store.Mention, arity)
	roleIDs := make([]int64, arity)
	for {
		for j := range idx {
			args[j] = lists[j][idx[j]]
		}

		ok := true

		// Throttler first, called exactly once per tuple.
		if throttler != nil && !throttler(args) {
			ok = false
		}

		// Self, nested, and symmetric filters apply to binary relations
		// only. Higher arities are throttle-only.
		if ok && arity == 2 {
			ok = e.keepBinary(idx[0], args[0], idx[1], args[1])
		}

		if ok {
			for j := range args {
				roleIDs[j] = args[j].ID
			}

			skip := false
			if !opts.Clear {
				exists, err := tx.CandidateExists(ctx, schema, opts.Split, roleIDs)
				if err != nil {
					return emitted, fmt.Errorf("existence check: %w", err)
				}
				skip = exists
			}
			if !skip {
				// INSERT OR IGNORE backs up the check: a concurrent
				// duplicate degrades to inserted=false, never an error.
				inserted, err := tx.InsertCandidate(ctx, schema, opts.Split, docID, roleIDs)
				if err != nil {
					return emitted, fmt.Errorf("inserting candidate: %w", err)
				}
				if inserted {
					emitted++
				}
			}
		}

		// Advance the odometer, rightmost position fastest.
		j := arity - 1
		for ; j >= 0; j-- {
			idx[j]++
			if idx[j] < len(lists[j]) {
				break
			}
			idx[j] = 0
		}
		if j < 0 {
			return emitted, nil
		}
	}
}

// keepBinary applies the filter policy to one binary tuple in the fixed
// order self, nested, symmetric, short-circuiting on the first rejection.
func (e *CandidateExtractor) keepBinary(ai int, a store.Mention, bi int, b store.Mention) bool {
	if !e.policy.SelfRelations && spanEqual(a, b) {
		return false
	}
	if !e.policy.NestedRelations && spanNested(a, b) {
		return false
	}
	if !e.policy.SymmetricRelations && ai > bi {
		return false
	}
	return true
}
