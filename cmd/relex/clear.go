package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/relex"
)

var (
	clearSplit    int
	clearRelation string
	clearMentions bool
)

// clearCmd represents the clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete extracted candidates (and optionally mentions)",
	Long: `Deletes every registered relation's candidates within the given
split, or just one relation's with --relation. With --mentions, the
configured mention types are wiped too, which cascades to candidates in
every split that reference them.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().IntVar(&clearSplit, "split", 0, "logical partition tag to clear")
	clearCmd.Flags().StringVar(&clearRelation, "relation", "", "clear only this relation's candidates")
	clearCmd.Flags().BoolVar(&clearMentions, "mentions", false, "also delete the configured mention types")
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if !cmd.Flags().Changed("split") {
		clearSplit = cfg.Split
	}

	p, err := relex.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()
	var n int64
	if clearRelation != "" {
		n, err = p.ClearRelation(ctx, clearRelation, clearSplit)
	} else {
		n, err = p.ClearCandidates(ctx, clearSplit)
	}
	if err != nil {
		return err
	}
	fmt.Printf("candidates deleted: %d (split %d)\n", n, clearSplit)

	if clearMentions {
		n, err := p.ClearMentions(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("mentions deleted:   %d\n", n)
	}
	return nil
}
