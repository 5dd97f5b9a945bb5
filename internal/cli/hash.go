package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"coretriage/internal/hash"
	"coretriage/internal/report"
)

// HashResult holds the fingerprints of one report.
type HashResult struct {
	Hashes []hash.Fingerprint `json:"hashes"`
	Short  string             `json:"short_hash"`
}

func (r HashResult) String() string {
	var b strings.Builder
	for _, fp := range r.Hashes {
		fmt.Fprintf(&b, "%s\t%s\n", fp.Strategy, fp.Hash)
	}
	fmt.Fprintf(&b, "short\t%s", r.Short)
	return b.String()
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash <report.json>",
		Short: "Compute a crash report's deduplication fingerprints",
		Long: `Compute the per-strategy backtrace hashes and the bounded crash-thread
short hash of a crash report. The report is repaired and validated first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runHash(opts *RootOptions, path string, cmd *cobra.Command) error {
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

	validator, err := report.NewValidator(cfg.Limits)
	if err != nil {
		return WrapExitError(ExitCommandError, "building validator", err)
	}
	if err := validator.Validate(r); err != nil {
		if se, ok := report.AsSchemaError(err); ok {
			_ = formatter.Error(report.ErrSchemaConstraint, "report violates schema", se.Violations)
		} else {
			var pe *report.ProcessError
			if errors.As(err, &pe) {
				_ = formatter.Error(string(pe.Code), pe.Message, nil)
			} else {
				return err
			}
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	fingerprints, err := hash.Backtrace(r)
	if err != nil {
		var pe *report.ProcessError
		if errors.As(err, &pe) {
			_ = formatter.Error(string(pe.Code), pe.Message, nil)
			return NewExitError(ExitFailure, "hashing failed")
		}
		return err
	}
	formatter.VerboseLog("%d strategy hash(es) computed", len(fingerprints))

	short, err := hash.Short(r, cfg.Processing.HashFrames)
	if err != nil {
		return err
	}

	return formatter.Success(HashResult{Hashes: fingerprints, Short: short})
}
