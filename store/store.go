// Package store wraps the SQLite database for all relex persistence:
// documents, sentences, mentions, and one candidate table per registered
// relation schema. All writes that must be atomic per document go through
// InTx; concurrent workers each run their own transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Sentence represents a row in the sentences table.
type Sentence struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
	CharOffset int    `json:"char_offset"`
}

// Mention represents a row in the mentions table. CharStart and CharEnd
// are absolute character offsets within the document; CharEnd is the
// offset of the span's last character (inclusive).
type Mention struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	SentenceID int64  `json:"sentence_id"`
	Type       string `json:"mention_type"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Text       string `json:"text"`
}

// Role is one argument slot of a relation schema: its column name and the
// mention type whose rows may fill it.
type Role struct {
	Name        string `json:"name"`
	MentionType string `json:"mention_type"`
}

// RelationDef describes a registered relation schema. Roles are ordered;
// the arity is len(Roles).
type RelationDef struct {
	Name  string `json:"name"`
	Roles []Role `json:"roles"`
}

// Store wraps the SQLite database for all relex persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite. Each worker transaction gets
	// its own connection from this pool.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Document operations ---

// UpsertDocument inserts or updates a document record. Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (name, content_hash, metadata)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, doc.Name, doc.ContentHash, nullIfEmpty(doc.Metadata))
	if err != nil {
		return 0, err
	}

	// On the UPDATE path last_insert_rowid still holds the connection's
	// previous insert, so the row id must come from a lookup either way.
	var id int64
	row := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE name = ?", doc.Name)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return s.getDocument(ctx, "id = ?", id)
}

// GetDocumentByName retrieves a document by its unique name.
func (s *Store) GetDocumentByName(ctx context.Context, name string) (*Document, error) {
	return s.getDocument(ctx, "name = ?", name)
}

func (s *Store) getDocument(ctx context.Context, where string, arg any) (*Document, error) {
	doc := &Document{}
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, content_hash, metadata, created_at, updated_at
		FROM documents WHERE `+where, arg).
		Scan(&doc.ID, &doc.Name, &doc.ContentHash, &metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Metadata = metadata.String
	return doc, nil
}

// ListDocuments returns all documents ordered by id.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content_hash, metadata, created_at, updated_at
		FROM documents ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var metadata sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &d.ContentHash, &metadata,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Metadata = metadata.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Sentences, mentions, and candidates
// referencing it are removed by foreign-key cascade.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	return err
}

// --- Sentence operations ---

// InsertSentences stores the sentences of one document in a single
// transaction. Re-inserting the same (document, position) pair is a no-op.
func (s *Store) InsertSentences(ctx context.Context, sentences []Sentence) error {
	return s.InTx(ctx, func(tx *Tx) error {
		stmt, err := tx.tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO sentences (document_id, position, text, char_offset)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sent := range sentences {
			if _, err := stmt.ExecContext(ctx,
				sent.DocumentID, sent.Position, sent.Text, sent.CharOffset); err != nil {
				return fmt.Errorf("inserting sentence %d of document %d: %w",
					sent.Position, sent.DocumentID, err)
			}
		}
		return nil
	})
}

// SentencesByDocument returns the document's sentences ordered by position.
func (s *Store) SentencesByDocument(ctx context.Context, docID int64) ([]Sentence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, position, text, char_offset
		FROM sentences WHERE document_id = ? ORDER BY position
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sents []Sentence
	for rows.Next() {
		var sent Sentence
		if err := rows.Scan(&sent.ID, &sent.DocumentID, &sent.Position,
			&sent.Text, &sent.CharOffset); err != nil {
			return nil, err
		}
		sents = append(sents, sent)
	}
	return sents, rows.Err()
}

// --- Relation registry ---

// RegisterRelation records a relation schema and creates its candidate
// table. Registering the same definition again is a no-op; registering a
// different definition under an existing name is an error.
func (s *Store) RegisterRelation(ctx context.Context, def RelationDef) error {
	if !validIdent.MatchString(def.Name) {
		return fmt.Errorf("invalid relation name %q", def.Name)
	}
	if len(def.Roles) == 0 {
		return fmt.Errorf("relation %q has no roles", def.Name)
	}
	seen := make(map[string]bool, len(def.Roles))
	for _, r := range def.Roles {
		if !validIdent.MatchString(r.Name) {
			return fmt.Errorf("relation %q: invalid role name %q", def.Name, r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("relation %q: duplicate role name %q", def.Name, r.Name)
		}
		seen[r.Name] = true
	}

	existing, err := s.Relation(ctx, def.Name)
	if err == nil {
		if !sameRoles(existing.Roles, def.Roles) {
			return fmt.Errorf("relation %q already registered with different roles", def.Name)
		}
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	rolesJSON, err := json.Marshal(def.Roles)
	if err != nil {
		return err
	}

	return s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO relation_types (name, roles) VALUES (?, ?)",
			def.Name, string(rolesJSON)); err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, candidateTableSQL(def)); err != nil {
			return fmt.Errorf("creating candidate table for %q: %w", def.Name, err)
		}
		return nil
	})
}

// Relation returns the registered definition for one relation name.
// Returns sql.ErrNoRows when the relation is unknown.
func (s *Store) Relation(ctx context.Context, name string) (RelationDef, error) {
	var def RelationDef
	var rolesJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT name, roles FROM relation_types WHERE name = ?", name).
		Scan(&def.Name, &rolesJSON)
	if err != nil {
		return RelationDef{}, err
	}
	if err := json.Unmarshal([]byte(rolesJSON), &def.Roles); err != nil {
		return RelationDef{}, fmt.Errorf("decoding roles for %q: %w", name, err)
	}
	return def, nil
}

// Relations returns all registered relation definitions ordered by name.
func (s *Store) Relations(ctx context.Context) ([]RelationDef, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, roles FROM relation_types ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []RelationDef
	for rows.Next() {
		var def RelationDef
		var rolesJSON string
		if err := rows.Scan(&def.Name, &rolesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rolesJSON), &def.Roles); err != nil {
			return nil, fmt.Errorf("decoding roles for %q: %w", def.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func sameRoles(a, b []Role) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Transactions ---

// Tx wraps a single SQLite transaction. One document's extraction output
// is written through exactly one Tx, which gives per-document atomicity.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SentencesByDocument returns the document's sentences ordered by
// position, read inside the transaction.
func (t *Tx) SentencesByDocument(ctx context.Context, docID int64) ([]Sentence, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, document_id, position, text, char_offset
		FROM sentences WHERE document_id = ? ORDER BY position
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sents []Sentence
	for rows.Next() {
		var sent Sentence
		if err := rows.Scan(&sent.ID, &sent.DocumentID, &sent.Position,
			&sent.Text, &sent.CharOffset); err != nil {
			return nil, err
		}
		sents = append(sents, sent)
	}
	return sents, rows.Err()
}

// MentionsByDocument returns the document's mentions of one type, ordered
// by id ascending. The ordering is load-bearing: the symmetric filter's
// tie-break depends on it.
func (t *Tx) MentionsByDocument(ctx context.Context, docID int64, mentionType string) ([]Mention, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, document_id, sentence_id, mention_type, char_start, char_end, text
		FROM mentions WHERE document_id = ? AND mention_type = ? ORDER BY id
	`, docID, mentionType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mentions []Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.SentenceID, &m.Type,
			&m.CharStart, &m.CharEnd, &m.Text); err != nil {
			return nil, err
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// InsertMention inserts a mention unless an identical span of the same type
// already exists in the document. Reports whether a row was inserted and
// fills in m.ID on insert.
func (t *Tx) InsertMention(ctx context.Context, m *Mention) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO mentions (document_id, sentence_id, mention_type, char_start, char_end, text)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.DocumentID, m.SentenceID, m.Type, m.CharStart, m.CharEnd, m.Text)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	m.ID = id
	return true, nil
}

// MentionExists reports whether a mention with the given type and span is
// already stored for the document.
func (t *Tx) MentionExists(ctx context.Context, docID int64, mentionType string, charStart, charEnd int) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM mentions
		WHERE document_id = ? AND mention_type = ? AND char_start = ? AND char_end = ?
	`, docID, mentionType, charStart, charEnd).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertCandidate inserts one candidate row for the relation unless one
// with the same split and role assignment exists. The UNIQUE constraint on
// (split, role columns) makes this safe against concurrent duplicates: a
// racing insert degrades to a no-op instead of a second row.
func (t *Tx) InsertCandidate(ctx context.Context, def RelationDef, split int, docID int64, roleIDs []int64) (bool, error) {
	if len(roleIDs) != len(def.Roles) {
		return false, fmt.Errorf("relation %q: %d role ids for %d roles",
			def.Name, len(roleIDs), len(def.Roles))
	}

	cols := []string{"document_id", "split"}
	args := []any{docID, split}
	for i, r := range def.Roles {
		cols = append(cols, roleColumn(r.Name))
		args = append(args, roleIDs[i])
	}

	q := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?%s)",
		candidateTable(def.Name), strings.Join(cols, ", "), repeatPlaceholders(len(cols)-1))
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CandidateExists reports whether a candidate with the exact split and role
// assignment is already stored.
func (t *Tx) CandidateExists(ctx context.Context, def RelationDef, split int, roleIDs []int64) (bool, error) {
	if len(roleIDs) != len(def.Roles) {
		return false, fmt.Errorf("relation %q: %d role ids for %d roles",
			def.Name, len(roleIDs), len(def.Roles))
	}

	var where []string
	args := []any{split}
	for i, r := range def.Roles {
		where = append(where, roleColumn(r.Name)+" = ?")
		args = append(args, roleIDs[i])
	}

	q := fmt.Sprintf("SELECT 1 FROM %s WHERE split = ? AND %s",
		candidateTable(def.Name), strings.Join(where, " AND "))
	var one int
	err := t.tx.QueryRowContext(ctx, q, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteCandidatesForDocument removes one document's candidates of a
// relation within a split. Used by the clear-mode workers, which scope the
// delete to the documents they own.
func (t *Tx) DeleteCandidatesForDocument(ctx context.Context, relation string, split int, docID int64) (int64, error) {
	if !validIdent.MatchString(relation) {
		return 0, fmt.Errorf("invalid relation name %q", relation)
	}
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE split = ? AND document_id = ?", candidateTable(relation)),
		split, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMentionsForDocument removes one document's mentions of a type.
// Candidates referencing them are removed by cascade.
func (t *Tx) DeleteMentionsForDocument(ctx context.Context, mentionType string, docID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM mentions WHERE document_id = ? AND mention_type = ?",
		docID, mentionType)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Bulk operations ---

// DeleteCandidates removes all candidates of a relation within a split.
func (s *Store) DeleteCandidates(ctx context.Context, relation string, split int) (int64, error) {
	if !validIdent.MatchString(relation) {
		return 0, fmt.Errorf("invalid relation name %q", relation)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE split = ?", candidateTable(relation)), split)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllCandidates removes every registered relation's candidates
// within a split. Returns the total rows deleted.
func (s *Store) DeleteAllCandidates(ctx context.Context, split int) (int64, error) {
	defs, err := s.Relations(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, def := range defs {
		n, err := s.DeleteCandidates(ctx, def.Name, split)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeleteMentions removes all mentions of a type across documents.
func (s *Store) DeleteMentions(ctx context.Context, mentionType string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM mentions WHERE mention_type = ?", mentionType)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountCandidates returns the number of candidates stored for a relation
// within a split.
func (s *Store) CountCandidates(ctx context.Context, relation string, split int) (int64, error) {
	if !validIdent.MatchString(relation) {
		return 0, fmt.Errorf("invalid relation name %q", relation)
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE split = ?", candidateTable(relation)), split).
		Scan(&n)
	return n, err
}

// CountMentions returns the number of stored mentions of a type.
func (s *Store) CountMentions(ctx context.Context, mentionType string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mentions WHERE mention_type = ?", mentionType).Scan(&n)
	return n, err
}

// CandidateTuples returns the role-id assignment of every candidate of a
// relation within a split, ordered by the role ids. Row content (not row
// ids) is what equality across runs is defined on.
func (s *Store) CandidateTuples(ctx context.Context, relation string, split int) ([][]int64, error) {
	def, err := s.Relation(ctx, relation)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(def.Roles))
	for i, r := range def.Roles {
		cols[i] = roleColumn(r.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE split = ? ORDER BY %s",
		strings.Join(cols, ", "), candidateTable(def.Name), strings.Join(cols, ", "))

	rows, err := s.db.QueryContext(ctx, q, split)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tuples [][]int64
	for rows.Next() {
		tuple := make([]int64, len(cols))
		dest := make([]any, len(cols))
		for i := range tuple {
			dest[i] = &tuple[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
	}
	return tuples, rows.Err()
}

// --- helpers ---

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
