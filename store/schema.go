package store

import (
	"fmt"
	"regexp"
	"strings"
)

// schemaSQL returns the DDL for the fixed tables. Candidate tables are
// created dynamically per registered relation, see candidateTableSQL.
func schemaSQL() string {
	return `
-- Document registry
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    content_hash TEXT NOT NULL DEFAULT '',
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Sentences are the annotation units mentions are anchored to.
-- char_offset is the absolute offset of the sentence within the document.
CREATE TABLE IF NOT EXISTS sentences (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    text TEXT NOT NULL,
    char_offset INTEGER NOT NULL DEFAULT 0,
    UNIQUE(document_id, position)
);

-- Typed spans extracted from sentences. Offsets are absolute within the
-- document so span comparisons never need the sentence text.
CREATE TABLE IF NOT EXISTS mentions (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    sentence_id INTEGER NOT NULL REFERENCES sentences(id) ON DELETE CASCADE,
    mention_type TEXT NOT NULL,
    char_start INTEGER NOT NULL,
    char_end INTEGER NOT NULL,
    text TEXT NOT NULL,
    UNIQUE(document_id, mention_type, char_start, char_end)
);

-- Registry of relation schemas, one candidate table each.
CREATE TABLE IF NOT EXISTS relation_types (
    name TEXT PRIMARY KEY,
    roles JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_sentences_document ON sentences(document_id);
CREATE INDEX IF NOT EXISTS idx_mentions_document ON mentions(document_id);
CREATE INDEX IF NOT EXISTS idx_mentions_type ON mentions(mention_type);
`
}

// validIdent restricts dynamic SQL identifiers (relation and role names)
// to a safe subset. All dynamic DDL goes through this check.
var validIdent = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// candidateTable returns the table name for a relation schema.
func candidateTable(relation string) string {
	return "candidates_" + relation
}

// roleColumn returns the foreign-key column name for an argument role.
func roleColumn(role string) string {
	return role + "_id"
}

// candidateTableSQL builds the DDL for one relation's candidate table.
// The UNIQUE constraint over (split, role columns) is what makes concurrent
// duplicate inserts collapse into a single row under INSERT OR IGNORE.
func candidateTableSQL(def RelationDef) string {
	var cols, uniq []string
	for _, r := range def.Roles {
		cols = append(cols, fmt.Sprintf(
			"    %s INTEGER NOT NULL REFERENCES mentions(id) ON DELETE CASCADE,", roleColumn(r.Name)))
		uniq = append(uniq, roleColumn(r.Name))
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    split INTEGER NOT NULL DEFAULT 0,
%s
    UNIQUE(split, %s)
);
CREATE INDEX IF NOT EXISTS idx_%s_document ON %s(document_id);
CREATE INDEX IF NOT EXISTS idx_%s_split ON %s(split);
`,
		candidateTable(def.Name),
		strings.Join(cols, "\n"),
		strings.Join(uniq, ", "),
		candidateTable(def.Name), candidateTable(def.Name),
		candidateTable(def.Name), candidateTable(def.Name))
}
