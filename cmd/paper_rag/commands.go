package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"paper_rag/internal/app"
	"paper_rag/internal/config"
	"paper_rag/internal/extract"
	"paper_rag/internal/job"
	"paper_rag/internal/logger"
	"paper_rag/internal/reconstruct"
)

type cli struct {
	dataDir     string
	promptsFile string
	verbose     bool

	cfg     *config.Config
	prompts config.Prompts
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "paper_rag",
		Short: "Translate academic PDFs and ask questions about them",
		Long: `paper_rag extracts the content of academic PDFs, translates it with an LLM,
indexes the translation in an embedded vector store and answers questions
grounded in the indexed chunks.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}
	root.PersistentFlags().StringVar(&c.dataDir, "data", "", "data directory (overrides DATA_DIR)")
	root.PersistentFlags().StringVar(&c.promptsFile, "prompts", "", "TOML file overriding the prompt templates")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug output")

	root.AddCommand(
		c.extractCmd(),
		c.translateCmd(),
		c.ingestCmd(),
		c.askCmd(),
		c.chatCmd(),
		c.reconstructCmd(),
		c.collectionsCmd(),
		c.statusCmd(),
		c.removeCmd(),
		c.healthCmd(),
	)
	return root
}

func (c *cli) load(_ *cobra.Command, _ []string) error {
	if c.dataDir != "" {
		os.Setenv("DATA_DIR", c.dataDir)
	}
	if c.promptsFile != "" {
		os.Setenv("PROMPTS_FILE", c.promptsFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.verbose {
		cfg.Verbose = true
	}
	logger.SetVerbose(cfg.Verbose)

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}
	c.cfg, c.prompts = cfg, prompts
	logger.Debug("data directory: %s", cfg.DataDir)
	return nil
}

// open builds and initializes the application. The caller closes it.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	a, err := app.NewWithDeps(c.cfg, c.prompts, app.Deps{Observer: progress})
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	if err := a.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return a, nil
}

// withApp runs fn against an initialized application.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func progress(u job.Update) {
	if u.Percent == 100 || u.Stage == job.StageFailed {
		logger.Info("⏳ [%s] %d%% %s", u.Stage, u.Percent, u.Message)
		return
	}
	logger.Debug("[%s] %d%% %s", u.Stage, u.Percent, u.Message)
}

func report(cmd *cobra.Command, res app.Result) error {
	if !res.Success {
		return errors.New(res.Message)
	}
	cmd.Printf("✅ %s\n", res.Message)
	return nil
}

func (c *cli) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [pdf]",
		Short: "Extract the content list of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Extract(ctx, args[0])
				if err := report(cmd, res); err != nil {
					return err
				}
				cmd.Printf("content list: %s\n", res.Data.(extract.Output).ContentList)
				return nil
			})
		},
	}
}

func (c *cli) translateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate [content_list.json]",
		Short: "Translate an extracted content list",
		Long: `Translates every text item of a content list. An interrupted translation
resumes from its last checkpoint when the command is run again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Translate(ctx, args[0])
				if err := report(cmd, res); err != nil {
					return err
				}
				cmd.Printf("translated file: %s\n", res.Data)
				return nil
			})
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "ingest [pdf or translated json]...",
		Short: "Add documents to the knowledge base",
		Long: `Runs PDFs through extraction, translation and indexing, resuming from the
last finished stage. A *_translated.json file is indexed directly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					var res app.Result
					if strings.EqualFold(filepath.Ext(args[0]), ".json") {
						res = a.AddToRAG(ctx, args[0])
					} else {
						res = a.FromPDFToRAG(ctx, args[0])
					}
					if err := report(cmd, res); err != nil {
						return err
					}
					printProcessed(cmd, res.Data)
					return nil
				}

				batch := a.ProcessBatch(ctx, args)
				for _, item := range batch.Items {
					mark := "✅"
					if !item.Result.Success {
						mark = "❌"
					}
					cmd.Printf("%s %s: %s\n", mark, item.Document, item.Result.Message)
				}
				if reportPath != "" {
					if err := batch.WriteReport(reportPath); err != nil {
						return err
					}
					cmd.Printf("report saved to %s\n", reportPath)
				}
				if batch.Failed > 0 {
					return fmt.Errorf("%d of %d documents failed", batch.Failed, len(batch.Items))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reportPath, "report", "r", "", "write a Markdown summary of a batch run")
	return cmd
}

func printProcessed(cmd *cobra.Command, data any) {
	p, ok := data.(app.Processed)
	if !ok {
		return
	}
	cmd.Printf("collection: %s\n", p.Collection)
	if p.Ingest != nil {
		cmd.Printf("chunks: %d, new: %d, skipped: %d\n", p.Ingest.Chunks, p.Ingest.Inserted, p.Ingest.Skipped())
	}
}

func (c *cli) askCmd() *cobra.Command {
	var (
		searchOnly bool
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "ask [collection] [question]",
		Short: "Ask a question about an indexed document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, question := args[0], strings.Join(args[1:], " ")
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if !searchOnly {
					return a.Answer(ctx, question, collection, cmd.OutOrStdout())
				}

				results, err := a.Search(ctx, question, collection, topK)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				if len(results) == 0 {
					cmd.Println("No results found.")
					return nil
				}
				for i, r := range results {
					cmd.Printf("[%d] page %d, %s (%.3f)\n    %s\n", i+1, r.PageNum+1, r.ContentType, r.Score, r.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&searchOnly, "search", "s", false, "only list the retrieved chunks")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default RAG_TOP_K)")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [collection]",
		Short: "Ask questions interactively, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func (c *cli) reconstructCmd() *cobra.Command {
	var (
		mode     string
		withHTML bool
	)
	cmd := &cobra.Command{
		Use:   "reconstruct [document]",
		Short: "Rebuild a Markdown file from a translated document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := reconstruct.ParseMode(mode)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Reconstruct(ctx, args[0], m, withHTML)
				if err := report(cmd, res); err != nil {
					return err
				}
				out := res.Data.(app.Reconstruction)
				for _, f := range out.Files {
					cmd.Println(f)
				}
				st := out.Structure
				cmd.Printf("📑 %d headings, %d paragraphs, %d images, %d links\n",
					len(st.Headings), st.Paragraphs, st.Images, st.Links)
				for _, h := range st.Headings {
					cmd.Printf("  - %s\n", h)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(reconstruct.ModeTranslated), "text to use: origin or translated")
	cmd.Flags().BoolVar(&withHTML, "html", false, "also render the Markdown as HTML")
	return cmd
}

func (c *cli) collectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage vector store collections",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				names := a.Store().ListCollections()
				if len(names) == 0 {
					cmd.Println("No collections.")
					return nil
				}
				for _, name := range names {
					info, err := a.Store().CollectionInfo(name)
					if err != nil {
						return err
					}
					cmd.Printf("  %s (%d chunks)\n", info.Name, info.Count)
				}
				return nil
			})
		},
	}

	info := &cobra.Command{
		Use:   "info [collection]",
		Short: "Show collection details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				info, err := a.Store().CollectionInfo(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Name:     %s\nChunks:   %d\nMetric:   %s\nData dir: %s\n", info.Name, info.Count, info.Metric, info.DataDir)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete [collection]",
		Short: "Delete a collection, keeping the document files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				if err := a.Store().DeleteCollection(args[0]); err != nil {
					return err
				}
				cmd.Printf("✅ deleted %s\n", args[0])
				return nil
			})
		},
	}

	var compress bool
	export := &cobra.Command{
		Use:   "export [collection] [file]",
		Short: "Export a collection to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				if err := a.Store().ExportCollection(args[0], args[1], compress); err != nil {
					return err
				}
				cmd.Printf("✅ exported %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
	export.Flags().BoolVar(&compress, "compress", false, "gzip the export")

	imp := &cobra.Command{
		Use:   "import [file] [collection]",
		Short: "Import a collection from an export file, replacing one of the same name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var name string
				if len(args) == 2 {
					name = args[1]
				}
				n, err := a.Store().ImportCollection(ctx, args[0], name)
				if err != nil {
					return err
				}
				cmd.Printf("✅ imported %d chunks from %s\n", n, args[0])
				return nil
			})
		},
	}

	backup := &cobra.Command{
		Use:   "backup [file]",
		Short: "Export every collection to one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app.App) error {
				if err := a.Store().Backup(args[0], compress); err != nil {
					return err
				}
				cmd.Printf("✅ backup written to %s\n", args[0])
				return nil
			})
		},
	}
	backup.Flags().BoolVar(&compress, "compress", false, "gzip the backup")

	cmd.AddCommand(list, info, del, export, imp, backup)
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline stage of every known document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				docs, err := a.Documents(ctx)
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					cmd.Println("No documents.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DOCUMENT\tSTAGE\tUPDATED\tLAST ERROR")
				for _, d := range docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Stage, d.UpdatedAt.Local().Format("2006-01-02 15:04"), d.LastError)
				}
				return w.Flush()
			})
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [document]",
		Short: "Delete a document and everything generated from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return report(cmd, a.Remove(ctx, args[0]))
			})
		},
	}
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the LLM and embedding backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Health(ctx)
				if h, ok := res.Data.(app.Health); ok {
					cmd.Printf("LLM:         %s (available: %t)\n", h.Generator, h.GeneratorAvailable)
					cmd.Printf("Embedding:   %s (available: %t)\n", h.Embedding, h.EmbeddingAvailable)
					cmd.Printf("Collections: %d\n", len(h.Collections))
					cmd.Printf("Documents:   %d\n", h.Documents)
					cmd.Printf("Cache:       %d/%d handles\n", h.CachedHandles, h.CacheCapacity)
				}
				return report(cmd, res)
			})
		},
	}
}
