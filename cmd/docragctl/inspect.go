package main

import (
	"github.com/spf13/cobra"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := root.openIndex()
			if err != nil {
				return err
			}
			snap := ix.Snapshot()
			if snap == nil {
				cmd.Println("No snapshot found.")
				return nil
			}

			cmd.Printf("fingerprint  %s\n", snap.Fingerprint())
			cmd.Printf("chunks       %d\n", snap.Len())
			cmd.Printf("vocabulary   %d\n", snap.VocabularySize())
			cmd.Printf("avg length   %.2f tokens\n", snap.AvgLen())
			cmd.Println("sources:")
			for _, s := range snap.Sources() {
				cmd.Printf("  %-40s %d chunks\n", s.Source, s.Chunks)
			}
			return nil
		},
	}
}
