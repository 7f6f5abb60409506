package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/answer"
)

type queryHit struct {
	Rank    int     `json:"rank"`
	Source  string  `json:"source"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Print the chunks ranked highest for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := root.openIndex()
			if err != nil {
				return err
			}
			k := limit
			if k <= 0 {
				k = root.cfg.DefaultTopK
			}
			hits, err := ix.Query(strings.Join(args, " "), k)
			if err != nil {
				return err
			}

			out := make([]queryHit, len(hits))
			for i, h := range hits {
				out[i] = queryHit{Rank: i + 1, Source: h.Chunk.Source, ChunkID: h.Chunk.ID, Score: h.Score, Text: h.Chunk.Text}
			}
			if asJSON {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			if len(out) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			for _, h := range out {
				cmd.Printf("  [%d] %s (%.4f)\n", h.Rank, h.ChunkID, h.Score)
				cmd.Printf("      %s\n\n", answer.Excerpt(h.Text, answer.ExcerptRunes))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default $DEFAULT_TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}
