package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"paperlib/internal/adapter/gemini"
	"paperlib/internal/app"
	"paperlib/internal/retrieval"
)

const (
	documentsFile = "documents.json"
	ledgerFile    = "ledger.json"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, pipeline consumers and scheduled refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask and search tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				slog.InfoContext(ctx, "mcp server starting on stdio")
				return a.Ask.NewMCPServer().Run(ctx, &mcp.StdioTransport{})
			})
		},
	}
}

type askFlags struct {
	chemistry string
	topic     string
	topK      int
	json      bool
}

func askCmd() *cobra.Command {
	var f askFlags
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the library with citations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				opts, err := a.Ask.Options(f.topK, f.chemistry, f.topic)
				if err != nil {
					return err
				}
				answer, err := a.Retrieval.Ask(ctx, args[0], opts)
				return renderAnswer(cmd.OutOrStdout(), answer, err, f.json)
			})
		},
	}
	cmd.Flags().StringVar(&f.chemistry, "chemistry", "", "only use papers tagged with this chemistry")
	cmd.Flags().StringVar(&f.topic, "topic", "", "only use papers whose topics contain this text")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "maximum passages to use (default from settings)")
	cmd.Flags().BoolVar(&f.json, "json", false, "output the answer as JSON")
	return cmd
}

// renderAnswer prints an answer or the empty outcome. Backend and credential
// failures come back as errors so the process exits non-zero.
func renderAnswer(w io.Writer, answer *retrieval.Answer, err error, asJSON bool) error {
	if errors.Is(err, retrieval.ErrNoRelevantPassages) {
		if asJSON {
			return writeJSON(w, retrieval.Answer{Citations: []retrieval.Citation{}})
		}
		fmt.Fprintln(w, "No relevant passages found.")
		return nil
	}
	if err != nil {
		return askDiagnostic(err)
	}

	if asJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintln(w, answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for _, c := range answer.Citations {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	return nil
}

func askDiagnostic(err error) error {
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return fmt.Errorf("no Gemini API key: set GEMINI_API_KEY or PUT /settings: %w", err)
	case errors.Is(err, retrieval.ErrTimeout):
		return fmt.Errorf("a backend did not answer in time: %w", err)
	case errors.Is(err, retrieval.ErrBackendUnavailable):
		return fmt.Errorf("a backend is unreachable: %w", err)
	}
	return err
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Recompute lifecycle status for every document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Classifier.Run(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy document metadata onto indexed chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Syncer.Run(ctx)
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Classify, then sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Refresher.Run(ctx)
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
}

func flagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List open inconsistency flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				flags, err := a.Flags.List(ctx)
				if err != nil {
					return err
				}
				if len(flags) == 0 {
					cmd.Println("No open flags.")
					return nil
				}
				for _, f := range flags {
					cmd.Printf("%s  %-15s %-20s %s\n", f.ID, f.Kind, f.DocumentID, f.Message)
				}
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write documents and the processing ledger as JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return err
				}
				var n int
				err := writeFile(filepath.Join(dir, documentsFile), func(w io.Writer) error {
					var err error
					n, err = a.Documents.Export(ctx, w)
					return err
				})
				if err != nil {
					return fmt.Errorf("export documents: %w", err)
				}
				err = writeFile(filepath.Join(dir, ledgerFile), func(w io.Writer) error {
					return a.Ledger.Export(ctx, w)
				})
				if err != nil {
					return fmt.Errorf("export ledger: %w", err)
				}
				slog.InfoContext(ctx, "export complete", "dir", dir, "documents", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "data/export", "output directory")
	return cmd
}

func importCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load documents and the processing ledger from JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				docs, err := readFile(filepath.Join(dir, documentsFile), func(r io.Reader) (int, error) {
					return a.Documents.Import(ctx, r)
				})
				if err != nil {
					return fmt.Errorf("import documents: %w", err)
				}
				entries, err := readFile(filepath.Join(dir, ledgerFile), func(r io.Reader) (int, error) {
					return a.Ledger.Import(ctx, r)
				})
				if err != nil {
					return fmt.Errorf("import ledger: %w", err)
				}
				slog.InfoContext(ctx, "import complete", "dir", dir, "documents", docs, "ledger_entries", entries)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "data/export", "input directory")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readFile treats a missing file as nothing to import.
func readFile(path string, fn func(io.Reader) (int, error)) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return fn(f)
}
