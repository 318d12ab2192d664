package relex

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("relex: invalid configuration")

	// ErrDocumentNotFound is returned when a document ID or name does not exist.
	ErrDocumentNotFound = errors.New("relex: document not found")

	// ErrUnknownMentionType is returned when a schema references a mention
	// type that was never configured.
	ErrUnknownMentionType = errors.New("relex: unknown mention type")

	// ErrUnknownRelation is returned when an operation names a relation
	// schema that was never registered.
	ErrUnknownRelation = errors.New("relex: unknown relation")
)
