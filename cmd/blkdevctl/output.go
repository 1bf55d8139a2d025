package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// usageError marks bad command-line input.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

var stdoutIsTerminal = func() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// jsonOutput reports whether results go out as JSON: --json, or stdout is not
// a terminal.
func jsonOutput(cmd *cobra.Command) bool {
	if on, _ := cmd.Flags().GetBool("json"); on {
		return true
	}
	return !stdoutIsTerminal()
}

// printResult writes v as indented JSON, or runs human otherwise.
func printResult(cmd *cobra.Command, v any, human func()) {
	if !jsonOutput(cmd) {
		human()
		return
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error encoding output: %v\n", err)
	}
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usagef("%v", err)
		}
		return nil
	}
}
