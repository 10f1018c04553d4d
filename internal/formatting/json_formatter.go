package formatting

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// FormatData writes data as JSON, indented unless Quiet is set.
func (f *JSONFormatter) FormatData(data interface{}) error {
	if f.options.Quiet {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, err = fmt.Fprintln(f.options.Writer, string(b))
		return err
	}
	_, err := fmt.Fprintln(f.options.Writer, PrettyJSON(data))
	return err
}
