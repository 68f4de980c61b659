package tabular

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// xmlNode is a generic element tree used to walk arbitrary documents.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

// textContent returns the concatenated character data of the node and all
// of its descendants, matching DOM textContent semantics.
func (n *xmlNode) textContent() string {
	if len(n.Nodes) == 0 {
		return n.Text
	}
	var b strings.Builder
	b.WriteString(n.Text)
	for i := range n.Nodes {
		b.WriteString(n.Nodes[i].textContent())
	}
	return b.String()
}

// parseXML parses an XML document whose root wraps a repeated record
// element. The record element is the child tag with the highest occurrence
// count under the root; ties break toward the first-encountered tag.
func parseXML(content string) (*Result, error) {
	var root xmlNode
	if err := xml.Unmarshal([]byte(content), &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	rootAttrs := make(map[string]string, len(root.Attrs))
	for _, attr := range root.Attrs {
		rootAttrs[attr.Name.Local] = attr.Value
	}

	recordName := dominantChildName(root.Nodes)

	var rows []*Record
	for i := range root.Nodes {
		child := &root.Nodes[i]
		if child.XMLName.Local != recordName {
			continue
		}
		rec := NewRecord()
		if len(child.Nodes) > 0 {
			// Child elements become columns.
			for j := range child.Nodes {
				field := &child.Nodes[j]
				rec.Set(field.XMLName.Local, strings.TrimSpace(field.textContent()))
			}
		} else if len(child.Attrs) > 0 {
			// Childless records fall back to attribute columns.
			for _, attr := range child.Attrs {
				rec.Set(attr.Name.Local, attr.Value)
			}
		}
		rows = append(rows, rec)
	}

	return &Result{
		Rows:    rows,
		Columns: firstRowColumns(rows),
		Summary: Summary{
			TotalRecords: len(rows),
			RecordName:   recordName,
			RootAttrs:    rootAttrs,
		},
	}, nil
}

// dominantChildName picks the most frequent child tag name, preserving
// first-encountered order for ties.
func dominantChildName(nodes []xmlNode) string {
	counts := make(map[string]int)
	var order []string
	for i := range nodes {
		name := nodes[i].XMLName.Local
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}

	best := ""
	bestCount := 0
	for _, name := range order {
		if counts[name] > bestCount {
			best = name
			bestCount = counts[name]
		}
	}
	return best
}
