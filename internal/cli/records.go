package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/georesolve/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
	Batch    string
	Input    int
	Replace  bool
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Batch    string
	Output   string
}

// TransferResult is the JSON payload of import and export.
type TransferResult struct {
	Batch   string `json:"batch"`
	Input   *int   `json:"input,omitempty"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped,omitempty"`
	Path    string `json:"path,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.jsonl|->",
		Short: "Import JSON-lines tuples into a batch",
		Long: `Import wire tuples, one JSON object per line, as one input of a batch.

Each tuple carries a WKT or GeoJSON geometry, an attribute map and the
record properties (class, membership, tile, crs, id, parent, removed).
Tuples with a missing, empty or undecodable geometry are skipped and
counted. Nothing is written if any other line fails to decode. "-" reads
stdin.

Examples:
  georesolve import --db records.db --batch raw --input 0 model-a.jsonl
  cat model-b.jsonl | georesolve import --db records.db --batch raw --input 1 -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "batch name (required)")
	cmd.Flags().IntVar(&opts.Input, "input", 0, "input number within the batch")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "delete the batch before importing")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("batch")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to open input", err)
		}
		defer f.Close()
		r = f
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.Replace {
		n, err := st.DeleteBatch(ctx, opts.Batch)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to clear batch", err)
		}
		slog.Debug("batch cleared", "batch", opts.Batch, "records", n)
	}

	n, skipped, err := st.ImportTuples(ctx, opts.Batch, opts.Input, r)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "import failed", err)
	}
	if skipped > 0 {
		slog.Warn("tuples with bad geometry skipped", "batch", opts.Batch, "input", opts.Input, "skipped", skipped)
	}

	if opts.Format == "json" {
		input := opts.Input
		return formatter.Success(TransferResult{Batch: opts.Batch, Input: &input, Records: n, Skipped: skipped, Path: path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d record(s) into %s input %d\n", n, opts.Batch, opts.Input)
	if skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  skipped: %d (bad geometry)\n", skipped)
	}
	return nil
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a batch as JSON-lines tuples",
		Long: `Export the live records of a batch as wire tuples, one per line.

Tombstoned records are not exported. Without --output the tuples are
written to stdout and nothing else is printed there.

Examples:
  georesolve export --db records.db --batch clean > clean.jsonl
  georesolve export --db records.db --batch clean --output clean.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "batch name (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("batch")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	// Tuples own stdout; diagnostics go to stderr.
	if opts.Output == "" {
		formatter.Writer = cmd.ErrOrStderr()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to create output", err)
		}
		defer f.Close()
		w = f
	}

	n, err := st.ExportTuples(cmd.Context(), opts.Batch, w)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "export failed", err)
	}
	formatter.VerboseLog("Exported %d record(s) from %s", n, opts.Batch)

	if opts.Output == "" {
		return nil
	}
	if opts.Format == "json" {
		return formatter.Success(TransferResult{Batch: opts.Batch, Records: n, Path: opts.Output})
	}
	fmt.Fprintf(formatter.Writer, "✓ Exported %d record(s) from %s to %s\n", n, opts.Batch, opts.Output)
	return nil
}
