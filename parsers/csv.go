package parsers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyInput is returned when the input has no header row or no data rows
var ErrEmptyInput = errors.New("input contains no header or no data rows")

// Record represents a single CSV row as a map of column name to value
type Record map[string]string

// Document is a fully parsed CSV file
type Document struct {
	Headers   []string
	Delimiter rune
	Rows      []Record
}

// RowCount returns the number of data rows (header excluded)
func (d *Document) RowCount() int {
	return len(d.Rows)
}

// Parse tokenizes raw CSV text into headers and records.
//
// Line endings are normalized before splitting and blank lines are dropped.
// The delimiter is detected from the header line only: comma by default,
// tab if the line contains one, semicolon if semicolons outnumber commas.
// Malformed quoting never fails the parse; an unmatched quote simply keeps
// the rest of the line inside the current field.
func Parse(raw []byte) (*Document, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) < 2 {
		return nil, ErrEmptyInput
	}

	delim := DetectDelimiter(lines[0])

	headers := splitFields(lines[0], delim)
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	doc := &Document{
		Headers:   headers,
		Delimiter: delim,
	}

	for _, line := range lines[1:] {
		fields := splitFields(line, delim)

		// A row survives only if at least one field is non-empty after
		// trimming; this drops fully blank trailing lines without losing
		// rows that merely miss optional columns
		empty := true
		for _, f := range fields {
			if strings.TrimSpace(f) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		// Position-based shaping: missing trailing columns become empty
		// strings, extra columns are ignored. Values keep their whitespace;
		// only the emptiness check above trims.
		record := make(Record, len(headers))
		for i, header := range headers {
			if i < len(fields) {
				record[header] = fields[i]
			} else {
				record[header] = ""
			}
		}
		doc.Rows = append(doc.Rows, record)
	}

	if len(doc.Rows) == 0 {
		return nil, ErrEmptyInput
	}

	return doc, nil
}

// DetectDelimiter inspects a header line and picks the field delimiter.
// This is a heuristic, not a guarantee; the result is applied to every row.
func DetectDelimiter(header string) rune {
	if strings.ContainsRune(header, '\t') {
		return '\t'
	}
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

// splitFields tokenizes one line with a quote-aware state machine. A quote
// toggles the in-quotes flag unless it is doubled while inside quotes, in
// which case a literal quote is appended. The delimiter only splits fields
// outside quotes.
func splitFields(line string, delim rune) []string {
	var fields []string
	var field strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				field.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == delim && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteRune(ch)
		}
	}
	fields = append(fields, field.String())

	return fields
}

// EscapeField quotes a value when it contains the delimiter, a quote, or a
// line break, doubling any embedded quotes. Parsing an escaped field yields
// the original value back.
func EscapeField(value string, delim rune) string {
	if !strings.ContainsAny(value, string(delim)+"\"\n\r") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// WriteRow writes one CSV row with proper escaping
func WriteRow(w io.Writer, fields []string, delim rune) error {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = EscapeField(f, delim)
	}
	if _, err := fmt.Fprintf(w, "%s\n", strings.Join(escaped, string(delim))); err != nil {
		return err
	}
	return nil
}
