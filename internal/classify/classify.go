// Package classify guesses whether a data file carries product or income
// records. The guess is advisory: the confirm step of the import flow always
// lets the operator proceed regardless of score margin, and a tied score
// silently resolves to product.
package classify

import (
	"regexp"
	"strings"

	"github.com/imvu-insight/datasync/internal/tabular"
)

// DataType is the kind of snapshot a data file feeds.
type DataType string

const (
	Product DataType = "product"
	Income  DataType = "income"
)

// String returns the wire value ("product" or "income").
func (t DataType) String() string { return string(t) }

// Label returns the display form ("Product" or "Income").
func (t DataType) Label() string {
	switch t {
	case Income:
		return "Income"
	default:
		return "Product"
	}
}

// ParseDataType maps a wire or display value to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "product":
		return Product, true
	case "income":
		return Income, true
	default:
		return "", false
	}
}

// Keyword weights. A column name can match several keywords and collects the
// weight for each one; "product_id" scores for "product", "product_id" and
// the weak "id" hint all at once.
var (
	strongProduct = []string{"sku", "price", "product", "product_id", "productname", "title"}
	strongIncome  = []string{"amount", "total", "income", "paid", "payment", "buyer", "recipient", "seller"}
	weakProduct   = []string{"name", "id"}
	weakIncome    = []string{"date", "time"}
)

// numericValue matches plain non-negative decimal numbers, optionally with
// comma grouping and up to two decimal places.
var numericValue = regexp.MustCompile(`^\d{1,3}[,\d]*(?:\.\d{1,2})?$`)

// partyValue matches cell values that look like counterparty references.
var partyValue = regexp.MustCompile(`(?i)buyer|recipient|seller|user|account`)

// sampleRows caps how many rows value sampling inspects.
const sampleRows = 10

// Detect classifies parsed rows as product or income data.
//
// The heuristic runs in order, first decisive rule wins:
//  1. a filename keyword short-circuits all scoring,
//  2. weighted keyword matches over distinct lower-cased column names (plus
//     the summary record name),
//  3. value sampling of the first rows for numeric and counterparty
//     patterns.
//
// Income wins only on a strictly higher score; ties favor Product.
func Detect(rows []*tabular.Record, summary *tabular.Summary, fileName string) DataType {
	if byName, ok := detectFromFileName(fileName); ok {
		return byName
	}

	productScore := 0
	incomeScore := 0

	keys := make(map[string]struct{})
	for _, row := range rows {
		for _, col := range row.Columns() {
			keys[strings.ToLower(col)] = struct{}{}
		}
	}
	if summary != nil && summary.RecordName != "" {
		keys[strings.ToLower(summary.RecordName)] = struct{}{}
	}

	for key := range keys {
		for _, kw := range strongProduct {
			if strings.Contains(key, kw) {
				productScore += 3
			}
		}
		for _, kw := range weakProduct {
			if strings.Contains(key, kw) {
				productScore++
			}
		}
		for _, kw := range strongIncome {
			if strings.Contains(key, kw) {
				incomeScore += 3
			}
		}
		for _, kw := range weakIncome {
			if strings.Contains(key, kw) {
				incomeScore++
			}
		}
	}

	sample := rows
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}
	for _, row := range sample {
		for _, col := range row.Columns() {
			val := strings.TrimSpace(row.Get(col))
			if val == "" {
				continue
			}
			key := strings.ToLower(col)
			if numericValue.MatchString(val) {
				// Numeric-looking values could be price or amount; the
				// column name decides which side they count for.
				if strings.Contains(key, "price") || strings.Contains(key, "sku") || strings.Contains(key, "cost") {
					productScore += 2
				}
				if strings.Contains(key, "amount") || strings.Contains(key, "total") ||
					strings.Contains(key, "income") || strings.Contains(key, "paid") {
					incomeScore += 2
				}
			}
			if partyValue.MatchString(val) {
				incomeScore += 2
			}
		}
	}

	if incomeScore > productScore {
		return Income
	}
	return Product
}

// detectFromFileName applies the filename override. Product keywords are
// checked first, mirroring the established precedence.
func detectFromFileName(fileName string) (DataType, bool) {
	fn := strings.ToLower(fileName)
	if fn == "" {
		return "", false
	}
	for _, kw := range []string{"product", "productlist", "sku"} {
		if strings.Contains(fn, kw) {
			return Product, true
		}
	}
	for _, kw := range []string{"income", "incomelog", "sales", "order"} {
		if strings.Contains(fn, kw) {
			return Income, true
		}
	}
	return "", false
}
