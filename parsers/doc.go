// Package parsers tokenizes user-supplied CSV text into header and row
// records for the contact-import pipeline.
//
// Files are assumed to fit comfortably in memory; Parse returns a complete
// Document rather than streaming. The delimiter is detected once from the
// header line (comma, tab, or semicolon) and reused for every row.
//
// Parsing is deliberately forgiving: quoting errors never fail the parse,
// rows missing trailing columns are padded with empty strings, and a row is
// only discarded when every field is empty after trimming. The single hard
// failure is ErrEmptyInput for a file with no headers or no data rows.
//
// Example usage:
//
//	doc, err := parsers.Parse(rawBytes)
//	if err != nil {
//	    // errors.Is(err, parsers.ErrEmptyInput)
//	}
//	for _, row := range doc.Rows {
//	    fmt.Println(row["email"])
//	}
//
// EscapeField and WriteRow are the symmetric serializers used by the export
// path; EscapeField output always parses back to the original value.
package parsers
