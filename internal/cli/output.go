package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query failed (schema mismatch, missing value, bad filter value)
	ExitCommandError = 2 // Command error (bad config, unreadable schema, unknown model)
)

// Error codes for failures that carry no errs.Code.
const (
	ErrCodeGeneric = "ERROR"
	ErrCodeConfig  = "CONFIG"
	ErrCodeSchema  = "SCHEMA"
	ErrCodeUsage   = "USAGE"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Model    string `json:"model,omitempty"`
	Property string `json:"property,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(e CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &e,
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if f.Verbose && (e.Model != "" || e.Property != "") {
		fmt.Fprintf(f.Writer, "Details: model=%s property=%s\n", e.Model, e.Property)
	}
	return nil
}

// Records outputs records as a table in text mode, or as a list of
// property/value objects in JSON mode. columns names the properties to show,
// in order.
func (f *OutputFormatter) Records(columns []string, recs []*model.Record) error {
	if f.Format == "json" {
		out := make([]model.Values, len(recs))
		for i, r := range recs {
			out[i] = r.Values()
		}
		return f.Success(out)
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	for i, c := range columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	for _, r := range recs {
		for i, c := range columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell(r.Value(c)))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	f.VerboseLog("%d record(s)", len(recs))
	return nil
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err through the formatter and returns the ExitError the
// command should return. Errors carrying an errs.Code are query failures;
// everything else is a command error.
func (f *OutputFormatter) Fail(err error) error {
	e := CLIError{Code: ErrCodeGeneric, Message: err.Error()}
	exit := ExitCommandError

	var ce *codedError
	var qe *errs.Error
	switch {
	case errors.As(err, &ce):
		e = CLIError{Code: ce.code, Message: ce.err.Error()}
	case errors.As(err, &qe):
		e = CLIError{Code: string(qe.Code), Message: qe.Message, Model: qe.Model, Property: qe.Property}
		exit = ExitFailure
	}
	_ = f.Error(e)

	var xe *ExitError
	if errors.As(err, &xe) {
		return xe
	}
	return WrapExitError(exit, e.Code, err)
}

// codedError attaches a CLI error code to a non-query failure.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func commandError(code string, err error) *ExitError {
	return WrapExitError(ExitCommandError, code, &codedError{code: code, err: err})
}
