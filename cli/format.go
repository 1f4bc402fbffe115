package cli

import (
	"strings"
	"time"
	"unicode/utf8"
)

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.Format(time.RFC3339)
}

func formatTimeOrNil(v *time.Time) string {
	if v == nil {
		return ""
	}
	return formatTime(*v)
}

// table renders rows as aligned columns. Headers are underlined with dashes.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(values ...string) {
	t.rows = append(t.rows, values)
}

func (t *table) format() string {
	widths := make([]int, len(t.headers))
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i := 0; i < len(widths) && i < len(row); i++ {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}

	separator := make([]string, len(widths))
	for i, width := range widths {
		separator[i] = strings.Repeat("-", width)
	}

	var sb strings.Builder
	for _, row := range append([][]string{t.headers, separator}, t.rows...) {
		for i := 0; i < len(widths); i++ {
			var value string
			if i < len(row) {
				value = row[i]
			}

			if i != 0 {
				sb.WriteString("   ")
			}
			sb.WriteString(value)

			// last column is not padded
			if i != len(widths)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(value)))
			}
		}
		sb.WriteRune('\n')
	}

	return sb.String()
}
