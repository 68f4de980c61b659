package tabular

import "strings"

// parseCSV parses comma-delimited text. The first line is the header row;
// every following non-blank line becomes one record keyed by header.
//
// This is deliberately a plain comma split, not an RFC 4180 reader: the
// upstream data files never quote fields, and the import preview must show
// exactly what the server-side snapshot loader will see.
func parseCSV(content string) (*Result, error) {
	var lines []string
	for _, line := range strings.FieldsFunc(content, func(r rune) bool { return r == '\n' }) {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}

	headers := strings.Split(lines[0], ",")
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	rows := make([]*Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		vals := strings.Split(line, ",")
		rec := NewRecord()
		for i, h := range headers {
			// Missing trailing fields map to empty string.
			if i < len(vals) {
				rec.Set(h, strings.TrimSpace(vals[i]))
			} else {
				rec.Set(h, "")
			}
		}
		rows = append(rows, rec)
	}

	return &Result{
		Rows:    rows,
		Columns: firstRowColumns(rows),
		Summary: Summary{
			TotalRecords: len(rows),
			RecordName:   "row",
			RootAttrs:    map[string]string{},
		},
	}, nil
}
