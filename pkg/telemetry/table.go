package telemetry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Table is raw tabular input before validation.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the index of the named column, matching trimmed names
// case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

// TableFromMaps builds a table from row maps. Columns are the union of keys;
// keys missing from a row become blank cells.
func TableFromMaps(rows []map[string]any) *Table {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		// map iteration is random; keep the column order stable
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			columns = append(columns, k)
		}
	}

	t := &Table{Columns: columns, Rows: make([][]string, len(rows))}
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			if v, ok := row[c]; ok {
				cells[j] = formatCell(v)
			}
		}
		t.Rows[i] = cells
	}
	return t
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
