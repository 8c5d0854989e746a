package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/engine"
	"github.com/dshills/agentctx/internal/indexer"
	"github.com/dshills/agentctx/internal/mcp"
	"github.com/dshills/agentctx/pkg/types"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the index as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			mcp.ServerVersion = version
			a.logger.Info("starting MCP server",
				zap.String("event", "app.serve"),
				zap.String("version", version))
			return mcp.NewServer(a.engine, a.logger).Serve(cmd.Context(), os.Stdin, os.Stdout)
		}),
	}
}

func newIndexCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Index every text file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			paths, stats, err := a.engine.IndexCodebase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"paths": paths, "statistics": stats})
			}
			printStats(out, stats)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <dir>",
		Short: "Delete the index of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.engine.ResetIndex(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Index reset: %s\n", args[0])
			return nil
		}),
	}
}

// searchFlags are shared by search and prepare
type searchFlags struct {
	limit     int
	threshold float64
	asJSON    bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.limit, "limit", "n", types.DefaultSearchLimit, "maximum results per table")
	cmd.Flags().Float64VarP(&f.threshold, "threshold", "t", types.DefaultSearchThreshold, "minimum similarity a result must exceed")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print results as JSON")
}

func (f *searchFlags) options(cmd *cobra.Command) types.SearchOptions {
	opts := types.SearchOptions{Limit: f.limit}
	if cmd.Flags().Changed("threshold") {
		threshold := f.threshold
		opts.Threshold = &threshold
	}
	return opts
}

func newSearchCmd() *cobra.Command {
	var (
		flags   searchFlags
		kind    string
		project string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the chunks most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			query := strings.Join(args, " ")
			opts := flags.options(cmd)
			opts.ProjectDir = project

			var docs, resources []types.SearchResult
			var err error
			switch kind {
			case "documents":
				docs, err = a.engine.FindRelevantDocuments(cmd.Context(), query, opts)
			case "resources":
				resources, err = a.engine.FindRelevantResources(cmd.Context(), query, opts)
			case "all":
				if docs, err = a.engine.FindRelevantDocuments(cmd.Context(), query, opts); err == nil {
					resources, err = a.engine.FindRelevantResources(cmd.Context(), query, opts)
				}
			default:
				return fmt.Errorf("invalid --kind %q: must be documents, resources or all", kind)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, map[string]any{"documents": docs, "resources": resources})
			}
			printResults(out, "Documents", docs)
			printResults(out, "Resources", resources)
			return nil
		}),
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&kind, "kind", "k", "all", "table to search: documents, resources or all")
	cmd.Flags().StringVarP(&project, "project", "p", "", "restrict results to one indexed directory")
	return cmd
}

func newPrepareCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "prepare <dir> <query>",
		Short: "Update the index of a directory, then search it",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			query := strings.Join(args[1:], " ")
			res, err := a.engine.Prepare(cmd.Context(), args[0], query, flags.options(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, res)
			}
			printStats(out, res.Stats)
			printResults(out, "Documents", res.Documents)
			printResults(out, "Resources", res.Resources)
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [dir]",
		Short: "Show index statistics for a directory, or list indexed directories",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				projects, err := a.engine.Projects(cmd.Context())
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					fmt.Fprintln(out, "No indexed directories")
					return nil
				}
				for _, p := range projects {
					fmt.Fprintf(out, "%s\t(indexed %s)\n", p.RootDirectory, p.CreatedAt.Format(time.RFC3339))
				}
				return nil
			}

			status, err := a.engine.Status(cmd.Context(), args[0])
			if errors.Is(err, engine.ErrProjectNotFound) {
				fmt.Fprintf(out, "Not indexed: %s\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Project:             %s\n", status.Project.RootDirectory)
			fmt.Fprintf(out, "Resources:           %d (%d embeddings)\n", status.Resources, status.ResourceEmbeddings)
			fmt.Fprintf(out, "Documents:           %d (%d embeddings)\n", status.Documents, status.DocumentEmbeddings)
			fmt.Fprintf(out, "Database size:       %.2f MB\n", float64(status.DatabaseSizeBytes)/(1<<20))
			fmt.Fprintf(out, "Indexing in progress: %v\n", a.engine.Indexing(args[0]))
			return nil
		}),
	}
}

func printStats(w io.Writer, stats *indexer.Statistics) {
	fmt.Fprintf(w, "Indexed %d files in %s\n", stats.FilesDiscovered, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  New:        %d\n", stats.FilesIndexed)
	fmt.Fprintf(w, "  Changed:    %d\n", stats.FilesUpdated)
	fmt.Fprintf(w, "  Unchanged:  %d\n", stats.FilesUnchanged)
	fmt.Fprintf(w, "  Removed:    %d\n", stats.FilesRemoved)
	fmt.Fprintf(w, "  Failed:     %d\n", stats.FilesFailed)
	fmt.Fprintf(w, "  Chunks:     %d embedded, %d dropped\n", stats.ChunksEmbedded, stats.ChunksDropped)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}

func printResults(w io.Writer, title string, results []types.SearchResult) {
	if results == nil {
		return
	}
	fmt.Fprintf(w, "%s (%d)\n", title, len(results))
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s:%d-%d  similarity=%.3f\n", i+1, r.Metadata.FilePath, r.Metadata.StartLine, r.Metadata.EndLine, r.Similarity)
		for _, line := range strings.Split(strings.TrimRight(r.Content, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
