package domain

// BomRow is one usable line of a BOM spreadsheet.
type BomRow struct {
	Supplier    string  `json:"supplier"`
	SPN         string  `json:"spn"`
	MPN         string  `json:"mpn"`
	Quantity    float64 `json:"quantity"`
	Designators string  `json:"designators"`
	Row         int     `json:"row"`
}

// LookupNumber is the part number used to resolve the row: the SKU when present,
// otherwise the MPN.
func (r BomRow) LookupNumber() string {
	if r.SPN != "" {
		return r.SPN
	}
	return r.MPN
}

// SkippedRow records a spreadsheet line that could not be used.
type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
