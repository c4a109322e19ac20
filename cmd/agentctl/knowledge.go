package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/rag"

	"github.com/spf13/cobra"
)

func newKnowledgeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Query the built-in music knowledge catalogue",
	}
	cmd.AddCommand(newKnowledgeSearchCmd(opts))
	return cmd
}

func newKnowledgeSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		maxTokens int
		threshold float64
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run searchAll and print the rendered retrieval prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg := rag.DefaultConfig()
			cfg.SimilarityThreshold = threshold
			engine := rag.NewEngine(cfg, embedding.NewHashEmbedder(0), opts.logger())
			if err := engine.Start(cmd.Context()); err != nil {
				return err
			}
			defer engine.Stop()

			searchOpts := rag.DefaultSearchOptions()
			searchOpts.MaxTotalTokens = maxTokens
			bundle, err := engine.SearchAll(cmd.Context(), query, searchOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			}
			if bundle.Empty() {
				noteColor.Fprintln(out, "No catalogue entries above the similarity threshold.")
				return nil
			}
			fmt.Fprintln(out, rag.BuildRAGPrompt(query, bundle))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", rag.DefaultSearchOptions().MaxTotalTokens, "Token budget for the whole bundle")
	cmd.Flags().Float64Var(&threshold, "threshold", rag.DefaultConfig().SimilarityThreshold, "Minimum cosine similarity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw bundle as JSON")
	return cmd
}
