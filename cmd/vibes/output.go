// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	isatty "github.com/mattn/go-isatty"

	"github.com/vibesml/vibes/services/vibes/datatypes"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0 // Operation completed successfully
	CLIExitError   = 2 // Operation failed
)

// prettyOutput reports whether human-readable output should be used:
// stdout is a terminal and --json was not given.
func prettyOutput() bool {
	if jsonOutput {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// OutputJSON writes structured data as indented JSON to stdout.
func OutputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputError writes an error message and exits with CLIExitError.
func OutputError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(CLIExitError)
}

// printExperimentTable renders metadata rows as an aligned table.
func printExperimentTable(metas []datatypes.ExperimentMetadata) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tDISPLAY NAME\tSTATUS\tCREATED")
	for _, meta := range metas {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			meta.Name, meta.Type, meta.DisplayName, meta.Status,
			meta.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
