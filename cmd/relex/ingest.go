package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Register plaintext documents, segmented into sentences",
	Long: `Reads each file, registers it as a document, and segments it into
sentences with document-absolute offsets. Re-ingesting an unchanged file
is a no-op.

Real annotation pipelines insert documents and sentences directly through
the store; this loader exists so the extraction passes have something to
run on.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		docID, err := p.IngestText(ctx, filepath.Base(path), string(data))
		if err != nil {
			return err
		}
		fmt.Printf("ingested %s (document %d)\n", path, docID)
	}
	return nil
}
