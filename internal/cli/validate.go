package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/fixture"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string // CUE schema replacing the built-in one
}

// FileReport lists the problems of one fixture file.
type FileReport struct {
	Path     string   `json:"path"`
	Entities int      `json:"entities"`
	Problems []string `json:"problems,omitempty"`
}

// ValidateResult is the outcome of the validate command.
type ValidateResult struct {
	Files    []FileReport `json:"files"`
	Valid    bool         `json:"valid"`
	Problems int          `json:"problems"`
}

func (r ValidateResult) Text(w io.Writer) error {
	for _, f := range r.Files {
		if len(f.Problems) == 0 {
			fmt.Fprintf(w, "✓ %s (%d entities)\n", f.Path, f.Entities)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", f.Path)
		for _, p := range f.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if r.Valid {
		_, err := fmt.Fprintln(w, "✓ All fixtures valid")
		return err
	}
	_, err := fmt.Fprintf(w, "%d problem(s) found\n", r.Problems)
	return err
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <fixture.yaml>...",
		Short: "Check fixtures against the model schema",
		Long: `Check that every model of the given fixtures is well-formed: key fields
present and integer-like, field values of the declared kind.

A session drops malformed models on merge; validate reports them up front.

Exit codes:
  0 - All fixtures valid
  1 - One or more problems found
  2 - Command error (unreadable schema, etc.)

Examples:
  duelsync validate ./fixtures/*.yaml
  duelsync validate --schema ./models.cue ./fixtures/season1.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE model schema (default: built-in)")
	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, err := loadRegistry(opts.Schema)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "failed to load model schema", err)
	}

	result := ValidateResult{Files: make([]FileReport, 0, len(files)), Valid: true}
	for _, path := range files {
		report := validateFixture(path, reg)
		result.Problems += len(report.Problems)
		result.Files = append(result.Files, report)
	}
	result.Valid = result.Problems == 0

	if result.Valid {
		return out.Success(result)
	}
	msg := fmt.Sprintf("%d problem(s) found", result.Problems)
	if err := out.Report(result, &CLIError{Code: CodeFixture, Message: msg}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

func loadRegistry(path string) (*model.Registry, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}

func validateFixture(path string, reg *model.Registry) FileReport {
	report := FileReport{Path: path}
	entities, err := fixture.Load(path, reg)
	if err != nil {
		report.Problems = []string{err.Error()}
		return report
	}
	report.Entities = len(entities)
	for i, e := range entities {
		_, problems := reg.Sanitize(e)
		for _, p := range problems {
			report.Problems = append(report.Problems, fmt.Sprintf("entities[%d]: %v", i, p))
		}
	}
	return report
}
