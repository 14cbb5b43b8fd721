package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"agentgate/internal/config"
	"agentgate/internal/knowledge"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the local knowledge base used by the knowledge memory backend",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [file...]",
		Short: "Chunk and store text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, args []string, e *knowledge.Engine) error {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				mimeType := mime.TypeByExtension(filepath.Ext(path))
				if mimeType == "" {
					mimeType = "text/plain"
				}
				doc, err := e.AddDocument(cmd.Context(), filepath.Base(path), mimeType, string(data))
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %d chunks)\n",
					color.GreenString("✓"), doc.Name, doc.ID, doc.ChunkCount)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: withEngine(func(cmd *cobra.Command, args []string, e *knowledge.Engine) error {
			docs, err := e.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCHUNKS\tSIZE\tADDED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Name, d.ChunkCount, humanSize(d.Size), d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "Show the chunks the memory stage would see",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, args []string, e *knowledge.Engine) error {
			results, err := e.Query(cmd.Context(), args[0], 5)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("no matches"))
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s#%d (score %.2f)\n%s\n\n",
					color.CyanString("▸"), r.DocName, r.Chunk.ChunkIndex, r.Score, r.Chunk.Content)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Remove a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, args []string, e *knowledge.Engine) error {
			if err := e.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", color.GreenString("✓"), args[0])
			return nil
		}),
	})

	return cmd
}

// withEngine opens the knowledge store for the duration of one command.
func withEngine(fn func(*cobra.Command, []string, *knowledge.Engine) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		e, closer, err := openKnowledge(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()
		return fn(cmd, args, e)
	}
}

func openKnowledge(cfg *config.Config) (*knowledge.Engine, *knowledge.SQLiteStore, error) {
	store, err := knowledge.NewSQLiteStore(cfg.Knowledge.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return knowledge.NewEngine(knowledge.EngineConfig{
		Store:     store,
		ChunkSize: cfg.Knowledge.ChunkSize,
		Overlap:   cfg.Knowledge.ChunkOverlap,
		Logger:    logger,
	}), store, nil
}
