package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/relex"
)

var statusSplit int

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document, mention, and candidate counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusSplit, "split", 0, "split to count candidates in")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if !cmd.Flags().Changed("split") {
		statusSplit = cfg.Split
	}

	p, err := relex.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()
	s := p.Store()

	docs, err := p.Documents(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("documents: %d\n", len(docs))

	defs, err := s.Relations(ctx)
	if err != nil {
		return err
	}

	// Count each mention type referenced by a registered relation once.
	seen := map[string]bool{}
	for _, def := range defs {
		for _, role := range def.Roles {
			if seen[role.MentionType] {
				continue
			}
			seen[role.MentionType] = true
			n, err := s.CountMentions(ctx, role.MentionType)
			if err != nil {
				return err
			}
			fmt.Printf("mentions[%s]: %d\n", role.MentionType, n)
		}
	}

	for _, def := range defs {
		n, err := s.CountCandidates(ctx, def.Name, statusSplit)
		if err != nil {
			return err
		}
		fmt.Printf("candidates[%s] (split %d): %d\n", def.Name, statusSplit, n)
	}
	return nil
}
