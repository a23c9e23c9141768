package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.md>",
	Short: "Validate a plan file",
	Long: `Parse a plan file and check it for structural issues.

This command checks:
  - Group and step headers are recognized
  - Group and step ids are unique
  - Every dependency names a group of the plan
  - Resource strategies are known

The exit code indicates the result:
  0 - Plan is valid (may have warnings)
  1 - Plan has validation errors or could not be read

Examples:
  # Validate a plan and show its structure
  phasekit validate plan.md

  # Validate with JSON output
  phasekit validate --json plan.md`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output validation result as JSON")
}

// ValidationOutput represents the JSON output format for validation results.
type ValidationOutput struct {
	Valid        bool                     `json:"valid"`
	FilePath     string                   `json:"file_path"`
	Groups       int                      `json:"groups"`
	Steps        int                      `json:"steps"`
	ErrorCount   int                      `json:"error_count"`
	WarningCount int                      `json:"warning_count"`
	ParseWarning []string                 `json:"parse_warnings,omitempty"`
	Messages     []plan.ValidationMessage `json:"messages,omitempty"`
	ParseError   string                   `json:"parse_error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	out := cmd.OutOrStdout()
	p, err := e.parsePlan(args[0])
	if err != nil {
		if validateJSON {
			return outputJSON(out, ValidationOutput{FilePath: args[0], ParseError: err.Error()})
		}
		return err
	}

	result := plan.Validate(p)
	if validateJSON {
		return outputJSON(out, ValidationOutput{
			Valid:        result.IsValid(),
			FilePath:     p.SourceID,
			Groups:       p.GroupCount(),
			Steps:        p.TotalSteps(),
			ErrorCount:   result.ErrorCount,
			WarningCount: result.WarningCount,
			ParseWarning: p.Warnings,
			Messages:     result.Messages,
		})
	}

	fmt.Fprint(out, e.render.Plan(p, nil))
	fmt.Fprintln(out)
	if msg := e.render.Validation(p, result); msg != "" {
		fmt.Fprint(out, msg)
		fmt.Fprintln(out)
	}

	if !result.IsValid() {
		fmt.Fprintf(out, "Status: %s (%d errors, %d warnings)\n",
			e.theme.Error.Render("INVALID"), result.ErrorCount, result.WarningCount+len(p.Warnings))
		return &silentError{msg: "validation failed"}
	}
	fmt.Fprintf(out, "Status: %s (%d warnings)\n",
		e.theme.Success.Render("VALID"), result.WarningCount+len(p.Warnings))
	return nil
}

// outputJSON prints the validation output as formatted JSON. It returns a
// silentError if validation failed so the exit code is 1.
func outputJSON(w io.Writer, output ValidationOutput) error {
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		// Fallback: output a minimal valid JSON error response
		fmt.Fprintf(w, `{"valid": false, "file_path": %q, "parse_error": "internal error: failed to marshal output: %s"}`+"\n",
			output.FilePath, err.Error())
		return &silentError{msg: "validation failed"}
	}
	fmt.Fprintln(w, string(data))

	if !output.Valid {
		return &silentError{msg: "validation failed"}
	}
	return nil
}
