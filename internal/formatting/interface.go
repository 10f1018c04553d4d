// Package formatting renders command output as JSON, YAML or a table.
//
// Commands pass plain Go values (structs, maps, slices). JSON and YAML are
// encoded directly; the table formatter first converts the value to its
// JSON shape so struct tags decide the column names.
package formatting

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
	FormatTable OutputFormat = "table" // Rich table output
)

// Formats lists the accepted values of --output.
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatYAML}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool      // Compact output, no decorations
	Writer io.Writer // Defaults to os.Stdout
}

// Formatter writes one value in a fixed format.
type Formatter interface {
	FormatData(data interface{}) error
}

// ParseFormat validates an --output value.
func ParseFormat(name string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(name)))
	if format == "" {
		return FormatTable, nil
	}
	for _, f := range Formats {
		if f == format {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", name)
}

// New creates the formatter selected by options.Format.
func New(options Options) Formatter {
	if options.Writer == nil {
		options.Writer = os.Stdout
	}
	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{options: options}
	case FormatYAML:
		return &YAMLFormatter{options: options}
	default:
		return &TableFormatter{options: options}
	}
}
