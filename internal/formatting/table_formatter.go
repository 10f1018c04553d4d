package formatting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	pkgstrings "farmportal/pkg/strings"
)

// maxCellWidth truncates long values in table cells.
const maxCellWidth = 100

// leadingColumns are shown first when present.
var leadingColumns = []string{"id", "name", "email"}

// TableFormatter renders objects as KEY/VALUE tables and lists of objects
// as one row per item.
type TableFormatter struct {
	options Options
}

// FormatData writes data as a table.
func (f *TableFormatter) FormatData(data interface{}) error {
	generic, err := toGeneric(data)
	if err != nil {
		return err
	}

	switch v := generic.(type) {
	case map[string]interface{}:
		return f.formatObjectData(v)
	case []interface{}:
		return f.formatArrayData(v)
	default:
		_, err := fmt.Fprintln(f.options.Writer, formatCell(v))
		return err
	}
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Writer)
	t.SetStyle(table.StyleRounded)
	return t
}

// formatObjectData formats object data as key-value pairs
func (f *TableFormatter) formatObjectData(data map[string]interface{}) error {
	t := f.createTable()
	t.AppendHeader(table.Row{header("KEY"), header("VALUE")})

	for _, key := range orderedKeys([]map[string]interface{}{data}) {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(key), formatCell(data[key])})
	}

	t.Render()
	return nil
}

// formatArrayData formats a list. Lists of objects become one row per item.
func (f *TableFormatter) formatArrayData(data []interface{}) error {
	if len(data) == 0 {
		_, err := fmt.Fprintf(f.options.Writer, "%s\n", text.FgYellow.Sprint("No items found"))
		return err
	}

	rows := make([]map[string]interface{}, 0, len(data))
	for _, item := range data {
		obj, ok := item.(map[string]interface{})
		if !ok {
			rows = nil
			break
		}
		rows = append(rows, obj)
	}

	t := f.createTable()
	if rows == nil {
		t.AppendHeader(table.Row{header("#"), header("VALUE")})
		for i, item := range data {
			t.AppendRow(table.Row{i + 1, formatCell(item)})
		}
	} else {
		columns := orderedKeys(rows)
		headerRow := make(table.Row, 0, len(columns))
		for _, c := range columns {
			headerRow = append(headerRow, header(strings.ToUpper(c)))
		}
		t.AppendHeader(headerRow)

		for _, obj := range rows {
			row := make(table.Row, 0, len(columns))
			for _, c := range columns {
				row = append(row, formatCell(obj[c]))
			}
			t.AppendRow(row)
		}
	}
	t.Render()

	if !f.options.Quiet {
		_, err := fmt.Fprintf(f.options.Writer, "%s %s\n",
			text.FgHiBlue.Sprint("Total:"),
			text.FgHiWhite.Sprint(len(data)))
		return err
	}
	return nil
}

func header(s string) string {
	return text.FgHiCyan.Sprint(s)
}

// orderedKeys returns the union of keys, leading columns first and the
// rest sorted.
func orderedKeys(objs []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var rest []string
	for _, obj := range objs {
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)

	keys := make([]string, 0, len(rest))
	for _, lead := range leadingColumns {
		if seen[lead] {
			keys = append(keys, lead)
		}
	}
	for _, k := range rest {
		if !isLeading(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func isLeading(key string) bool {
	for _, lead := range leadingColumns {
		if key == lead {
			return true
		}
	}
	return false
}

func formatCell(v interface{}) string {
	var s string
	switch value := v.(type) {
	case nil:
		return text.FgHiBlack.Sprint("-")
	case string:
		s = value
	case float64:
		s = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", value), "0"), ".")
	case bool, int:
		s = fmt.Sprintf("%v", value)
	case map[string]interface{}:
		if name, ok := value["name"].(string); ok {
			s = name
		} else {
			s = compactJSON(value)
		}
	case []interface{}:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, formatCell(item))
		}
		s = strings.Join(parts, ", ")
	default:
		s = compactJSON(value)
	}
	return pkgstrings.SingleLine(s, maxCellWidth)
}
