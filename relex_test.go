//go:build cgo

package relex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/relex/store"
)

const testSchema = `
mention_types:
  - name: part
    max_ngram: 1
    matcher:
      type: regex
      pattern: "BC[0-9]+[A-Z]*"
  - name: temp
    max_ngram: 1
    matcher:
      type: regex
      pattern: "-?[0-9]+"

relations:
  - name: part_temp
    roles:
      - name: part
        mention_type: part
      - name: temp
        mention_type: temp
    throttler: same_sentence

filters:
  self_relations: false
  nested_relations: false
  symmetric_relations: true
`

func newTestPipeline(t *testing.T, schema string) *Pipeline {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.Parallelism = 2
	if schema != "" {
		path := filepath.Join(dir, "schema.yaml")
		if err := os.WriteFile(path, []byte(schema), 0o644); err != nil {
			t.Fatalf("writing schema file: %v", err)
		}
		cfg.SchemaPath = path
	}

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPipelineEndToEnd(t *testing.T) {
	p := newTestPipeline(t, testSchema)
	ctx := context.Background()

	docID, err := p.IngestText(ctx, "datasheet", "BC548 is rated to 125 C. The BC546 handles 150 C.")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	report, err := p.ExtractMentions(ctx, nil, false)
	if err != nil {
		t.Fatalf("extracting mentions: %v", err)
	}
	// Two parts and two temperatures across the two sentences.
	if report.Emitted != 4 {
		t.Errorf("expected 4 mentions, got %d", report.Emitted)
	}

	report, err = p.ExtractCandidates(ctx, nil, 0, false)
	if err != nil {
		t.Fatalf("extracting candidates: %v", err)
	}
	// same_sentence throttling keeps one (part, temp) pair per sentence.
	if report.Emitted != 2 {
		t.Errorf("expected 2 candidates, got %d", report.Emitted)
	}

	tuples, err := p.Store().CandidateTuples(ctx, "part_temp", 0)
	if err != nil {
		t.Fatalf("reading tuples: %v", err)
	}
	if len(tuples) != 2 {
		t.Errorf("expected 2 stored tuples, got %v", tuples)
	}

	// Re-ingesting the same content and re-running changes nothing.
	docID2, err := p.IngestText(ctx, "datasheet", "BC548 is rated to 125 C. The BC546 handles 150 C.")
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if docID2 != docID {
		t.Fatalf("re-ingest returned document %d, want %d", docID2, docID)
	}
	report, err = p.ExtractCandidates(ctx, []int64{docID}, 0, false)
	if err != nil {
		t.Fatalf("re-extracting: %v", err)
	}
	if report.Emitted != 0 {
		t.Errorf("expected idempotent re-run, got %d new candidates", report.Emitted)
	}
}

func TestPipelineClear(t *testing.T) {
	p := newTestPipeline(t, testSchema)
	ctx := context.Background()

	if _, err := p.IngestText(ctx, "doc", "BC548 at 125 C."); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := p.ExtractMentions(ctx, nil, false); err != nil {
		t.Fatalf("mentions: %v", err)
	}
	if _, err := p.ExtractCandidates(ctx, nil, 0, false); err != nil {
		t.Fatalf("candidates: %v", err)
	}

	n, err := p.ClearCandidates(ctx, 0)
	if err != nil {
		t.Fatalf("clearing candidates: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared candidate, got %d", n)
	}

	// Mentions survive candidate clearing.
	m, err := p.Store().CountMentions(ctx, "part")
	if err != nil || m != 1 {
		t.Errorf("expected part mention to survive, got %d (err %v)", m, err)
	}

	if _, err := p.ClearMentions(ctx); err != nil {
		t.Fatalf("clearing mentions: %v", err)
	}
	m, err = p.Store().CountMentions(ctx, "part")
	if err != nil || m != 0 {
		t.Errorf("expected mentions cleared, got %d (err %v)", m, err)
	}
}

func TestPipelineClearRelation(t *testing.T) {
	p := newTestPipeline(t, testSchema)
	ctx := context.Background()

	if _, err := p.IngestText(ctx, "doc", "BC548 at 125 C."); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := p.ExtractMentions(ctx, nil, false); err != nil {
		t.Fatalf("mentions: %v", err)
	}
	if _, err := p.ExtractCandidates(ctx, nil, 0, false); err != nil {
		t.Fatalf("candidates: %v", err)
	}

	n, err := p.ClearRelation(ctx, "part_temp", 0)
	if err != nil {
		t.Fatalf("clearing relation: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared candidate, got %d", n)
	}

	if _, err := p.ClearRelation(ctx, "no_such_relation", 0); !errors.Is(err, ErrUnknownRelation) {
		t.Errorf("expected ErrUnknownRelation, got %v", err)
	}
}

func TestPipelineUnconfigured(t *testing.T) {
	p := newTestPipeline(t, "")
	ctx := context.Background()

	if _, err := p.ExtractMentions(ctx, nil, false); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without mention types, got %v", err)
	}
	if _, err := p.ExtractCandidates(ctx, nil, 0, false); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without relations, got %v", err)
	}
}

func TestPipelineDocumentLookup(t *testing.T) {
	p := newTestPipeline(t, "")
	ctx := context.Background()

	if _, err := p.IngestText(ctx, "known", "some text."); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	doc, err := p.Document(ctx, "known")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if doc.Name != "known" {
		t.Errorf("doc.Name = %q, want %q", doc.Name, "known")
	}

	if _, err := p.Document(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestSchemaRejectsUnknownMentionType(t *testing.T) {
	schema := `
mention_types:
  - name: part
    max_ngram: 1
    matcher: {}
relations:
  - name: broken
    roles:
      - name: a
        mention_type: part
      - name: b
        mention_type: nothere
`
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(path, []byte(schema), 0o644); err != nil {
		t.Fatalf("writing schema file: %v", err)
	}

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.SchemaPath = path
	if _, err := New(cfg); !errors.Is(err, ErrUnknownMentionType) {
		t.Errorf("expected ErrUnknownMentionType, got %v", err)
	}
}

func TestBuildMatcherRegex(t *testing.T) {
	m, err := buildMatcher(MatcherSpec{Type: "regex", Pattern: "BC[0-9]+"})
	if err != nil {
		t.Fatalf("building matcher: %v", err)
	}
	if !m(store.Mention{Text: "BC548"}) {
		t.Error("expected BC548 to match")
	}
	// Full match, not substring.
	if m(store.Mention{Text: "xBC548y"}) {
		t.Error("expected xBC548y not to match")
	}

	if _, err := buildMatcher(MatcherSpec{Type: "regex"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for empty pattern, got %v", err)
	}
}

func TestBuildMatcherDict(t *testing.T) {
	m, err := buildMatcher(MatcherSpec{Type: "dict", Words: []string{"Resistor"}, IgnoreCase: true})
	if err != nil {
		t.Fatalf("building matcher: %v", err)
	}
	if !m(store.Mention{Text: "resistor"}) || !m(store.Mention{Text: "RESISTOR"}) {
		t.Error("expected case-insensitive dict match")
	}
	if m(store.Mention{Text: "capacitor"}) {
		t.Error("expected capacitor not to match")
	}
}

func TestBuildThrottlerUnknown(t *testing.T) {
	if _, err := buildThrottler("same_planet"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestIngestTextOffsets(t *testing.T) {
	p := newTestPipeline(t, "")
	ctx := context.Background()

	text := "First line here.\nSecond one."
	docID, err := p.IngestText(ctx, "doc", text)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	sents, err := p.Store().SentencesByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("reading sentences: %v", err)
	}
	if len(sents) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(sents))
	}
	for _, sent := range sents {
		sub := text[sent.CharOffset : sent.CharOffset+len(sent.Text)]
		if sub != sent.Text {
			t.Errorf("sentence offset %d does not index %q in the document", sent.CharOffset, sent.Text)
		}
	}
}
