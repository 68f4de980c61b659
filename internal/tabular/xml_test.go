package tabular

import (
	"errors"
	"reflect"
	"testing"
)

const incomeDoc = `<report start_date="2024-01-01" end_date="2024-01-31">
	<item><buyer>alice</buyer><amount>120.00</amount></item>
	<item><buyer>bob</buyer><amount>75.50</amount></item>
	<item><buyer>carol</buyer><amount>12.00</amount></item>
	<item><buyer>dave</buyer><amount>3.99</amount></item>
	<item><buyer>erin</buyer><amount>240.10</amount></item>
</report>`

func TestParseXML_RepeatedItems(t *testing.T) {
	result, err := Parse(incomeDoc, FormatXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Summary.TotalRecords != 5 {
		t.Errorf("TotalRecords = %d, want 5", result.Summary.TotalRecords)
	}
	if result.Summary.RecordName != "item" {
		t.Errorf("RecordName = %q, want %q", result.Summary.RecordName, "item")
	}

	wantAttrs := map[string]string{"start_date": "2024-01-01", "end_date": "2024-01-31"}
	if !reflect.DeepEqual(result.Summary.RootAttrs, wantAttrs) {
		t.Errorf("RootAttrs = %v, want %v", result.Summary.RootAttrs, wantAttrs)
	}

	if !reflect.DeepEqual(result.Columns, []string{"buyer", "amount"}) {
		t.Errorf("Columns = %v, want [buyer amount]", result.Columns)
	}
	if got := result.Rows[1].Get("amount"); got != "75.50" {
		t.Errorf("rows[1][amount] = %q, want 75.50", got)
	}
}

func TestParseXML_AttributeRecords(t *testing.T) {
	doc := `<products>
		<product sku="A-1" price="9.99"/>
		<product sku="B-2" price="19.50"/>
	</products>`

	result, err := Parse(doc, FormatXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Summary.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", result.Summary.TotalRecords)
	}
	if !reflect.DeepEqual(result.Columns, []string{"sku", "price"}) {
		t.Errorf("Columns = %v, want [sku price]", result.Columns)
	}
	if got := result.Rows[0].Get("sku"); got != "A-1" {
		t.Errorf("rows[0][sku] = %q, want A-1", got)
	}
}

func TestParseXML_DominantTagWins(t *testing.T) {
	doc := `<root>
		<meta>header</meta>
		<entry><id>1</id></entry>
		<entry><id>2</id></entry>
	</root>`

	result, err := Parse(doc, FormatXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Summary.RecordName != "entry" {
		t.Errorf("RecordName = %q, want entry", result.Summary.RecordName)
	}
	if result.Summary.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", result.Summary.TotalRecords)
	}
}

func TestParseXML_TieBreaksToFirstEncountered(t *testing.T) {
	doc := `<root>
		<alpha><v>1</v></alpha>
		<beta><v>2</v></beta>
	</root>`

	result, err := Parse(doc, FormatXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.RecordName != "alpha" {
		t.Errorf("RecordName = %q, want alpha (first encountered)", result.Summary.RecordName)
	}
}

func TestParseXML_TextContentTrimmed(t *testing.T) {
	doc := `<root><item><name>
		widget
	</name></item></root>`

	result, err := Parse(doc, FormatXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Rows[0].Get("name"); got != "widget" {
		t.Errorf("text not trimmed: %q", got)
	}
}

func TestParseXML_Malformed(t *testing.T) {
	_, err := Parse("<root><item></root>", FormatXML)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestParseXML_EmptyInput(t *testing.T) {
	_, err := Parse("", FormatXML)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}
