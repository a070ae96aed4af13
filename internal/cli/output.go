package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/fatih/color"
)

type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatJSON   OutputFormat = "json"
)

func ParseOutputFormat(s string) OutputFormat {
	if OutputFormat(s) == FormatJSON {
		return FormatJSON
	}
	return FormatPretty
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	keyColor     = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func printHeading(w io.Writer, s string) {
	headingColor.Fprintln(w, s)
}

// printParams lists bound parameters sorted by name.
func printParams(w io.Writer, params map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(params)) {
		keyColor.Fprintf(w, "  %s", k)
		fmt.Fprintf(w, " = %#v\n", params[k])
	}
}

func printError(w io.Writer, err error) {
	errorColor.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}
