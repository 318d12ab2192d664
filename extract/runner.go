package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/relex/store"
	"github.com/brunobiangulo/relex/worker"
)

// ApplyOptions configures one extraction run.
type ApplyOptions struct {
	// Split is the logical partition tag written to candidates. Mention
	// extraction ignores it.
	Split int

	// Clear deletes a document's previous rows before generating, scoped
	// to the documents the run owns. Without it the run is incremental:
	// existing rows are detected and skipped.
	Clear bool

	// Parallelism is the worker count. Values below one mean one worker,
	// which is a plain sequential run with identical output.
	Parallelism int
}

// DocFailure records one document that failed, with enough context to
// retry just that document.
type DocFailure struct {
	DocumentID int64
	Err        error
}

// Report aggregates an extraction run. Failed documents never abort the
// run; they are collected here.
type Report struct {
	DocsProcessed int
	Emitted       int64
	Failures      []DocFailure
}

// docFunc processes one document inside its own transaction and returns
// the number of rows emitted for it.
type docFunc func(ctx context.Context, tx *store.Tx, docID int64, opts ApplyOptions) (int64, error)

// docJob is one document end-to-end: open a transaction, run the engine,
// commit. A failure rolls the document's transaction back, so no partial
// rows for that document become visible.
type docJob struct {
	store *store.Store
	docID int64
	opts  ApplyOptions
	fn    docFunc
}

// docResult reports one processed document.
type docResult struct {
	docID   int64
	emitted int64
	err     error
}

func (r docResult) Err() error { return r.err }

func (j docJob) Execute(ctx context.Context) worker.Result {
	var emitted int64
	err := j.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		emitted, err = j.fn(ctx, tx, j.docID, j.opts)
		return err
	})
	if err != nil {
		err = fmt.Errorf("document %d: %w", j.docID, err)
	}
	return docResult{docID: j.docID, emitted: emitted, err: err}
}

// runDocuments fans docIDs out across a fixed pool of workers, each
// processing its documents in independent transactions. Every document is
// submitted exactly once, so no two workers can generate the same
// candidate concurrently; the store's uniqueness constraints are the
// backstop regardless.
func runDocuments(ctx context.Context, s *store.Store, name string, docIDs []int64, opts ApplyOptions, fn docFunc) (Report, error) {
	start := time.Now()
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	slog.Info("extract: starting run",
		"extractor", name, "documents", len(docIDs),
		"parallelism", parallelism, "split", opts.Split, "clear", opts.Clear)

	pool := worker.NewPool(ctx, parallelism)
	pool.Start()
	// Submit blocks once the pool's queues fill, so submission must run
	// alongside Wait's result drain or long document lists wedge the run.
	go func() {
		for _, id := range docIDs {
			pool.Submit(docJob{store: s, docID: id, opts: opts, fn: fn})
		}
		pool.Close()
	}()
	results := pool.Wait()

	var report Report
	for _, res := range results {
		dr := res.(docResult)
		report.DocsProcessed++
		if dr.err != nil {
			// Rolled back; the document's partial count never landed.
			slog.Warn("extract: document failed",
				"extractor", name, "document_id", dr.docID, "error", dr.err)
			report.Failures = append(report.Failures, DocFailure{DocumentID: dr.docID, Err: dr.err})
			continue
		}
		report.Emitted += dr.emitted
	}

	if err := ctx.Err(); err != nil {
		// Aborted run: documents already committed stay committed, the
		// rest were never started. An incremental re-run fills the gap.
		return report, err
	}

	slog.Info("extract: run finished",
		"extractor", name, "documents", report.DocsProcessed,
		"emitted", report.Emitted, "failed", len(report.Failures),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return report, nil
}
