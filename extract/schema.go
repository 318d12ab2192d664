// Package extract implements mention and candidate extraction: the
// combinatorial enumeration of typed spans and relation argument tuples,
// the self/nested/symmetric filters for binary relations, and the parallel
// per-document runner both extractors share.
package extract

import (
	"errors"

	"github.com/brunobiangulo/relex/store"
)

// ErrConfig marks extractor construction failures: mismatched list
// lengths, unknown names, empty schemas. Nothing is read or written when
// construction fails.
var ErrConfig = errors.New("extract: invalid extractor configuration")

// Throttler decides whether a specific argument combination is eligible to
// become a candidate. Args arrive in role order. Throttlers must be pure:
// no side effects and no store access, so they are safe to call from
// concurrent workers.
type Throttler func(args []store.Mention) bool

// Matcher decides whether a proposed span is plausible as a mention.
// Matchers must be pure, like throttlers.
type Matcher func(m store.Mention) bool

// FilterPolicy bundles the three switches applied to binary relations.
// Relations of arity above two skip all three; only throttling applies
// there.
type FilterPolicy struct {
	// SelfRelations keeps candidates whose two argument spans are
	// identical.
	SelfRelations bool

	// NestedRelations keeps candidates where one argument span is a
	// strict subspan of the other.
	NestedRelations bool

	// SymmetricRelations keeps both orderings of a pair. When false,
	// only the ordering with the lower positional index first survives;
	// mention-id ordering of the argument lists makes that deterministic.
	SymmetricRelations bool
}

// DefaultFilterPolicy suppresses self and nested relations and keeps
// symmetric ones.
func DefaultFilterPolicy() FilterPolicy {
	return FilterPolicy{SymmetricRelations: true}
}

// spanEqual reports whether two mentions cover the identical span.
func spanEqual(a, b store.Mention) bool {
	return a.CharStart == b.CharStart && a.CharEnd == b.CharEnd
}

// spanNested reports whether one mention's span is a strict subspan of the
// other, in either direction. Identical spans are not nested.
func spanNested(a, b store.Mention) bool {
	if spanEqual(a, b) {
		return false
	}
	return (a.CharStart <= b.CharStart && b.CharEnd <= a.CharEnd) ||
		(b.CharStart <= a.CharStart && a.CharEnd <= b.CharEnd)
}

// SameSentence is a throttler that keeps tuples whose arguments all come
// from one sentence.
func SameSentence(args []store.Mention) bool {
	for i := 1; i < len(args); i++ {
		if args[i].SentenceID != args[0].SentenceID {
			return false
		}
	}
	return true
}
