// Command docragctl builds, queries and inspects a docrag index from the
// command line.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/index"
)

func main() {
	cmd := newRootCmd()
	cmd.SetOut(os.Stdout)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	storage string
	sources string
	verbose bool
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docragctl",
		Short:         "Manage a docrag retrieval index",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.storage != "" {
				cfg.StorageDir = opts.storage
			}
			if err := cfg.ValidateRetrieval(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "storage directory (default $RAG_STORAGE_DIR or ./rag_storage)")
	cmd.PersistentFlags().StringVar(&opts.sources, "sources", "", "source directory (default <storage>/pdfs)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")

	cmd.AddCommand(newBuildCmd(opts), newQueryCmd(opts), newInspectCmd(opts))
	return cmd
}

func (o *rootOptions) sourceDir() string {
	if o.sources != "" {
		return o.sources
	}
	return o.cfg.SourceDir()
}

func (o *rootOptions) logger() *slog.Logger {
	if !o.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openIndex loads the stored snapshot.
func (o *rootOptions) openIndex() (*index.Index, error) {
	ix := index.New(index.NewFileStore(o.cfg.IndexDir()), o.cfg.IndexOptions(), o.logger())
	if err := ix.Open(); err != nil {
		return nil, err
	}
	return ix, nil
}
