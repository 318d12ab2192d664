// Package relex extracts structured relation candidates from documents
// that have been decomposed into typed, span-based mentions. The pipeline
// runs two passes over a shared SQLite store: mention extraction proposes
// and filters spans per sentence, and candidate extraction enumerates the
// filtered Cartesian product of per-role mention sets. Both passes fan out
// across documents on a fixed worker pool and are idempotent across
// re-runs.
package relex

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/brunobiangulo/relex/extract"
	"github.com/brunobiangulo/relex/segment"
	"github.com/brunobiangulo/relex/store"
)

// Pipeline is the main entry point. It owns the store and the two
// extractors built from the configured schema.
type Pipeline struct {
	cfg        Config
	store      *store.Store
	mentions   *extract.MentionExtractor
	candidates *extract.CandidateExtractor
	policy     extract.FilterPolicy
}

// New opens the store and, when the config names a schema file, builds
// the extractors from it. Schema and predicate validation failures
// surface here, before any document is processed.
func New(cfg Config) (*Pipeline, error) {
	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	p := &Pipeline{cfg: cfg, store: s}

	if cfg.SchemaPath != "" {
		schema, err := LoadSchemaFile(cfg.SchemaPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := p.LoadSchema(schema); err != nil {
			s.Close()
			return nil, err
		}
	}

	return p, nil
}

// LoadSchema builds the mention and candidate extractors from a schema
// definition. It replaces any previously loaded schema.
func (p *Pipeline) LoadSchema(f SchemaFile) error {
	p.policy = f.filterPolicy(p.cfg)

	if len(f.MentionTypes) > 0 {
		types, spaces, matchers, err := f.mentionInputs()
		if err != nil {
			return err
		}
		me, err := extract.NewMentionExtractor(p.store, types, spaces, matchers)
		if err != nil {
			return err
		}
		p.mentions = me
	}

	if len(f.Relations) > 0 {
		schemas, throttlers, err := f.relationInputs()
		if err != nil {
			return err
		}
		ce, err := extract.NewCandidateExtractor(context.Background(), p.store, schemas, throttlers, p.policy)
		if err != nil {
			return err
		}
		p.candidates = ce
	}

	return nil
}

// IngestText registers a plaintext document, segmenting it into
// sentences with document-absolute offsets. This is a convenience for the
// CLI; real annotation pipelines insert documents and sentences through
// the store directly.
func (p *Pipeline) IngestText(ctx context.Context, name, text string) (int64, error) {
	sum := sha256.Sum256([]byte(text))
	docID, err := p.store.UpsertDocument(ctx, store.Document{
		Name:        name,
		ContentHash: hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document %q: %w", name, err)
	}

	var sentences []store.Sentence
	for i, span := range segment.Sentences(text) {
		sentences = append(sentences, store.Sentence{
			DocumentID: docID,
			Position:   i,
			Text:       span.Text,
			CharOffset: span.Offset,
		})
	}

	if err := p.store.InsertSentences(ctx, sentences); err != nil {
		return 0, fmt.Errorf("inserting sentences for %q: %w", name, err)
	}
	return docID, nil
}

// Documents returns all registered documents.
func (p *Pipeline) Documents(ctx context.Context) ([]store.Document, error) {
	return p.store.ListDocuments(ctx)
}

// Document returns one document by name.
func (p *Pipeline) Document(ctx context.Context, name string) (*store.Document, error) {
	doc, err := p.store.GetDocumentByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, name)
	}
	return doc, err
}

// ExtractMentions runs mention extraction over the given documents, or all
// documents when docIDs is nil.
func (p *Pipeline) ExtractMentions(ctx context.Context, docIDs []int64, clear bool) (extract.Report, error) {
	if p.mentions == nil {
		return extract.Report{}, fmt.Errorf("%w: no mention types configured", ErrInvalidConfig)
	}
	docIDs, err := p.resolveDocs(ctx, docIDs)
	if err != nil {
		return extract.Report{}, err
	}
	return p.mentions.Apply(ctx, docIDs, extract.ApplyOptions{
		Clear:       clear,
		Parallelism: p.cfg.Parallelism,
	})
}

// ExtractCandidates runs candidate extraction over the given documents, or
// all documents when docIDs is nil, into the given split.
func (p *Pipeline) ExtractCandidates(ctx context.Context, docIDs []int64, split int, clear bool) (extract.Report, error) {
	if p.candidates == nil {
		return extract.Report{}, fmt.Errorf("%w: no relations configured", ErrInvalidConfig)
	}
	docIDs, err := p.resolveDocs(ctx, docIDs)
	if err != nil {
		return extract.Report{}, err
	}
	return p.candidates.Apply(ctx, docIDs, extract.ApplyOptions{
		Split:       split,
		Clear:       clear,
		Parallelism: p.cfg.Parallelism,
	})
}

// ClearCandidates deletes every registered relation's candidates within a
// split.
func (p *Pipeline) ClearCandidates(ctx context.Context, split int) (int64, error) {
	return p.store.DeleteAllCandidates(ctx, split)
}

// ClearRelation deletes one registered relation's candidates within a
// split. Returns ErrUnknownRelation when the name was never registered.
func (p *Pipeline) ClearRelation(ctx context.Context, name string, split int) (int64, error) {
	if _, err := p.store.Relation(ctx, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %q", ErrUnknownRelation, name)
		}
		return 0, err
	}
	return p.store.DeleteCandidates(ctx, name, split)
}

// ClearMentions deletes all mentions of the configured types, cascading to
// the candidates built on them.
func (p *Pipeline) ClearMentions(ctx context.Context) (int64, error) {
	if p.mentions == nil {
		return 0, fmt.Errorf("%w: no mention types configured", ErrInvalidConfig)
	}
	return p.mentions.Clear(ctx)
}

// Store returns the underlying store for diagnostic access.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// Close cleanly shuts down the pipeline.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

func (p *Pipeline) resolveDocs(ctx context.Context, docIDs []int64) ([]int64, error) {
	if docIDs != nil {
		return docIDs, nil
	}
	docs, err := p.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}
