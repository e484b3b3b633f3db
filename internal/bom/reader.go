// Package bom reads bill-of-materials exports (CSV or TSV) into domain.BomRow values.
package bom

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"synctree/internal/domain"
)

// firstDataRow is the 1-based line number of the first row after the header.
const firstDataRow = 2

// Accepted header names per column, compared case-insensitively.
var (
	supplierColumns   = []string{"supplier", "supplier name"}
	spnColumns        = []string{"spn", "sku", "supplier part number"}
	mpnColumns        = []string{"mpn", "manufacturer part number"}
	quantityColumns   = []string{"qty", "quantity"}
	designatorColumns = []string{"designators", "designator", "reference"}
)

// DelimiterFor returns a tab for ".tsv" files and a comma for anything else.
func DelimiterFor(name string) rune {
	if strings.EqualFold(path.Ext(name), ".tsv") {
		return '\t'
	}
	return ','
}

// Read parses a BOM with a header row. Rows without both MPN and SPN are returned as
// skipped; an absent or unparseable quantity becomes 1. UTF-8 and UTF-16 inputs with a
// byte order mark are both accepted.
func Read(r io.Reader, delimiter rune) ([]domain.BomRow, []domain.SkippedRow, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("bom: read header: %w", err)
	}
	cols := newColumnIndex(header)

	var rows []domain.BomRow
	var skipped []domain.SkippedRow
	for rowNum := firstDataRow; ; rowNum++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bom: row %d: %w", rowNum, err)
		}

		row := domain.BomRow{
			Supplier:    cols.value(record, supplierColumns),
			SPN:         cols.value(record, spnColumns),
			MPN:         cols.value(record, mpnColumns),
			Quantity:    parseQuantity(cols.value(record, quantityColumns)),
			Designators: cols.value(record, designatorColumns),
			Row:         rowNum,
		}
		if row.MPN == "" && row.SPN == "" {
			skipped = append(skipped, domain.SkippedRow{Row: rowNum, Reason: fmt.Sprintf("Row %d: No MPN or SPN", rowNum)})
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// parseQuantity never fails: blank, unparseable or non-finite values become 1.
func parseQuantity(raw string) float64 {
	if raw == "" {
		return 1.0
	}
	q, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) {
		return 1.0
	}
	return q
}

type columnIndex map[string]int

func newColumnIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// value returns the first non-empty cell among the aliases, trimmed.
func (c columnIndex) value(record []string, aliases []string) string {
	for _, alias := range aliases {
		i, ok := c[alias]
		if !ok || i >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			return v
		}
	}
	return ""
}
