// Package tabular converts raw CSV or XML text into a uniform list of row
// records plus inferred column headers. It carries no knowledge of what the
// rows mean; classification and import decisions happen elsewhere.
package tabular

import (
	"errors"
	"path/filepath"
	"strings"
)

// Format identifies the source syntax of a data file.
type Format int

const (
	FormatCSV Format = iota
	FormatXML
)

// ErrEmptyInput is returned when a CSV document contains no lines at all.
var ErrEmptyInput = errors.New("empty input")

// ErrInvalidDocument is returned when an XML document cannot be parsed.
var ErrInvalidDocument = errors.New("invalid document")

// ErrUnknownFormat is returned for file extensions other than .csv and .xml.
var ErrUnknownFormat = errors.New("unknown file format")

// FormatForFile maps a filename to its parse format by extension.
func FormatForFile(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xml":
		return FormatXML, nil
	default:
		return 0, ErrUnknownFormat
	}
}

// Record is one parsed data row. Column insertion order reflects source
// order, which plain Go maps would lose.
type Record struct {
	columns []string
	values  map[string]string
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]string)}
}

// Set stores a cell value, appending the column on first sight.
func (r *Record) Set(column, value string) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Get returns the cell value for column, or "" when absent.
func (r *Record) Get(column string) string {
	return r.values[column]
}

// Has reports whether the record carries a value for column.
func (r *Record) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Columns returns the record's column names in source order.
func (r *Record) Columns() []string {
	return r.columns
}

// Len returns the number of columns in the record.
func (r *Record) Len() int {
	return len(r.columns)
}

// Summary describes the shape of a parsed document.
type Summary struct {
	TotalRecords int
	// RecordName is the repeating element's tag for XML; for CSV it is the
	// fixed sentinel "row".
	RecordName string
	// RootAttrs holds the XML root element's own attributes, commonly a
	// start_date/end_date reporting range. Empty for CSV.
	RootAttrs map[string]string
}

// Result is the outcome of parsing a data file.
//
// Columns is derived from the first row only. A column that appears only in
// later rows is not listed, and zero-row results report no columns at all.
// Downstream consumers depend on this truncating behavior, so it is kept
// rather than widened to a union over all rows.
type Result struct {
	Rows    []*Record
	Columns []string
	Summary Summary
}

// Parse converts content into rows and columns according to format.
func Parse(content string, format Format) (*Result, error) {
	switch format {
	case FormatCSV:
		return parseCSV(content)
	case FormatXML:
		return parseXML(content)
	default:
		return nil, ErrUnknownFormat
	}
}

// ParseFile parses content using the format implied by fileName's extension.
func ParseFile(fileName, content string) (*Result, error) {
	format, err := FormatForFile(fileName)
	if err != nil {
		return nil, err
	}
	return Parse(content, format)
}

// firstRowColumns derives the result column list from the first row.
func firstRowColumns(rows []*Record) []string {
	if len(rows) == 0 {
		return nil
	}
	return rows[0].Columns()
}
