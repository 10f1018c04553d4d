package formatting

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// FormatData writes data as YAML. Values decoded from JSON (json.RawMessage)
// are converted first so that YAML shows their structure, not their bytes.
func (f *YAMLFormatter) FormatData(data interface{}) error {
	normalized, err := toGeneric(data)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	_, err = f.options.Writer.Write(out)
	return err
}
