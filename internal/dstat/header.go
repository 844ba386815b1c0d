package dstat

import (
	"encoding/csv"
	"strings"
	"unicode"

	"github.com/Guliveer/dstat-agent/internal/models"
)

// Row positions in a dstat CSV dump. Rows 0-4 are the banner
// ("Dstat ... CSV output", author, host, command, date) and are ignored.
const (
	categoryRow  = 5
	subMetricRow = 6
	sampleRow    = 7
)

// ColumnIdentity names one column of the dump.
type ColumnIdentity struct {
	Category  string
	SubMetric string
}

// SplitLines splits raw dump contents into lines. Row numbering counts
// every line, blank ones included.
func SplitLines(data []byte) []string {
	return strings.Split(string(data), "\n")
}

// ParseHeader builds one ColumnIdentity per column from the category row
// and the sub-metric row. Empty category cells inherit the category to
// their left. When both rows are absent the result is empty; when only
// one is present, or their lengths differ, a *MisalignmentError is
// returned.
func ParseHeader(lines []string) ([]ColumnIdentity, error) {
	catLine, hasCat := row(lines, categoryRow)
	subLine, hasSub := row(lines, subMetricRow)
	if !hasCat && !hasSub {
		return nil, nil
	}

	var categories []string
	if hasCat {
		cells, err := parseCSVLine(catLine)
		if err != nil {
			return nil, err
		}
		categories = forwardFill(cells)
	}

	var subMetrics []string
	if hasSub {
		subMetrics = strings.Split(subLine, ",")
	}

	if len(categories) != len(subMetrics) {
		return nil, &MisalignmentError{Row: "sub-metric", Want: len(categories), Got: len(subMetrics)}
	}

	ids := make([]ColumnIdentity, len(categories))
	for i := range categories {
		ids[i] = ColumnIdentity{Category: categories[i], SubMetric: subMetrics[i]}
	}
	return ids, nil
}

// ParseSample returns the cells of the value row. ok is false when the
// dump has no value row.
func ParseSample(lines []string) (values []string, ok bool, err error) {
	line, ok := row(lines, sampleRow)
	if !ok {
		return nil, false, nil
	}
	values, err = parseCSVLine(line)
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// Records pairs the value row with the header identities and returns a
// record for every column the key map knows, in column order. Headers
// are parsed from scratch on every call.
func Records(lines []string, host string) ([]models.MetricRecord, error) {
	ids, err := ParseHeader(lines)
	if err != nil {
		return nil, err
	}
	values, ok, err := ParseSample(lines)
	if err != nil || !ok {
		return nil, err
	}
	if len(values) != len(ids) {
		return nil, &MisalignmentError{Row: "value", Want: len(ids), Got: len(values)}
	}

	records := make([]models.MetricRecord, 0, len(values))
	for i, value := range values {
		stat, ok := Resolve(ids[i].Category, ids[i].SubMetric)
		if !ok {
			continue
		}
		records = append(records, models.MetricRecord{Stat: stat, Value: value, Host: host})
	}
	return records, nil
}

// row returns line idx with double quotes and a trailing CR removed.
// Lines that are blank after cleaning count as absent.
func row(lines []string, idx int) (string, bool) {
	if idx >= len(lines) {
		return "", false
	}
	line := strings.TrimSuffix(strings.ReplaceAll(lines[idx], `"`, ""), "\r")
	if line == "" {
		return "", false
	}
	return line, true
}

func parseCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

// forwardFill replaces empty cells with the last non-empty one seen to
// their left and turns whitespace inside non-empty cells into '_'.
func forwardFill(cells []string) []string {
	out := make([]string, len(cells))
	prev := ""
	for i, cell := range cells {
		if cell != "" {
			prev = strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return '_'
				}
				return r
			}, cell)
		}
		out[i] = prev
	}
	return out
}
