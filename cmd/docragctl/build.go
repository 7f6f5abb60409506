package main

import (
	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/corpus"
	"github.com/dgallion1/docrag/internal/index"
)

func newBuildCmd(root *rootOptions) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Rebuild the snapshot from the source directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := root.cfg.CorpusOptions()
			if policy != "" {
				p, err := corpus.ParsePolicy(policy)
				if err != nil {
					return err
				}
				opts.Policy = p
			}

			log := root.logger()
			res, err := corpus.Load(cmd.Context(), root.sourceDir(), opts, log)
			for _, s := range res.Skipped {
				cmd.PrintErrf("skipped %s: %v\n", s.Source, s.Err)
			}
			if err != nil {
				return err
			}

			ix := index.New(index.NewFileStore(root.cfg.IndexDir()), root.cfg.IndexOptions(), log)
			sum, err := ix.Rebuild(cmd.Context(), res.Documents)
			if err != nil {
				return err
			}
			cmd.Printf("indexed %d chunks from %d sources (%d skipped)\n", sum.Chunks, sum.Sources, len(res.Skipped))
			cmd.Printf("fingerprint %s\n", sum.Fingerprint)
			return nil
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", `ingestion failure policy: "fail" or "skip" (default $INGEST_POLICY)`)
	return cmd
}
