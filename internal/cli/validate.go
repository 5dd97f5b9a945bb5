package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"coretriage/internal/report"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <report.json>",
		Short: "Validate a crash report file",
		Long: `Validate a crash report JSON file against the coredump schema.

The JIT repair pass runs first, so reports with JIT-mangled frames are
judged after repair, the same way ingestion sees them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading report", err)
	}

	r, err := report.Parse(data)
	if err != nil {
		_ = formatter.Error(report.ErrMalformedReport, err.Error(), nil)
		return NewExitError(ExitFailure, "report is malformed")
	}
	formatter.VerboseLog("Parsed %s: %d thread(s)", path, len(r.Stacktrace))

	validator, err := report.NewValidator(cfg.Limits)
	if err != nil {
		return WrapExitError(ExitCommandError, "building validator", err)
	}

	if err := validator.Validate(r); err != nil {
		if se, ok := report.AsSchemaError(err); ok {
			_ = formatter.Error(report.ErrSchemaConstraint, "report violates schema", se.Violations)
			return NewExitError(ExitFailure, "validation failed")
		}

		var pe *report.ProcessError
		if errors.As(err, &pe) {
			_ = formatter.Error(string(pe.Code), pe.Message, nil)
			return NewExitError(ExitFailure, "validation failed")
		}

		return err
	}

	return formatter.Success("report is valid")
}
