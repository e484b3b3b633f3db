package domain

import "time"

// SyncResult is reported for a single part synced from a supplier.
type SyncResult struct {
	Success                 bool   `json:"success"`
	Supplier                string `json:"supplier"`
	Manufacturer            string `json:"manufacturer"`
	ManufacturerPartNumber  string `json:"manufacturer_part_number"`
	SupplierPartNumber      string `json:"supplier_part_number"`
	InvenTreePartID         int64  `json:"inventree_part_id"`
	InvenTreeSupplierPartID int64  `json:"inventree_supplier_part_id"`
	Description             string `json:"description"`
}

// ResyncState is the outcome of resyncing one supplier part.
type ResyncState string

const (
	ResyncUpToDate     ResyncState = "up_to_date"
	ResyncUpdated      ResyncState = "updated"
	ResyncUpdateFailed ResyncState = "update_failed"
	ResyncNotFound     ResyncState = "not_found"
	ResyncError        ResyncState = "error"
)

// PricePoint is the quantity/price pair reported in a pricing change.
type PricePoint struct {
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// FieldChange describes one drifted field. For pricing, Old and New hold the number
// of breaks and Added/Removed list the breaks that differ.
type FieldChange struct {
	Old     any          `json:"old"`
	New     any          `json:"new"`
	Added   []PricePoint `json:"added,omitempty"`
	Removed []PricePoint `json:"removed,omitempty"`
}

// Changes maps a field name ("active", "pricing") to its change.
type Changes map[string]FieldChange

// ResyncStatus is yielded once per supplier part during a bulk resync.
type ResyncStatus struct {
	SKU         string      `json:"sku"`
	Supplier    string      `json:"supplier"`
	Status      ResyncState `json:"status"`
	InvenTreeID int64       `json:"inventree_id"`
	Message     string      `json:"message"`
	Changes     Changes     `json:"changes,omitempty"`
}

// AssemblyResult describes the assembly part a BOM is attached to.
type AssemblyResult struct {
	InvenTreePartID int64  `json:"inventree_part_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Exists          bool   `json:"exists"`
}

// BomItemResult describes the outcome of linking a sub-part to an assembly.
type BomItemResult struct {
	BomItemID int64 `json:"bom_item_id"`
	Exists    bool  `json:"exists"`
}

// BomRowResult is the per-row outcome of a BOM import.
type BomRowResult struct {
	Row        int    `json:"row"`
	PartNumber string `json:"part_number"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	SubPartID  int64  `json:"sub_part_id,omitempty"`
}

// BomImportSummary is returned by a BOM import, even when every row failed.
type BomImportSummary struct {
	Assembly     AssemblyResult `json:"assembly"`
	SuccessCount int            `json:"success_count"`
	ErrorCount   int            `json:"error_count"`
	Skipped      []SkippedRow   `json:"skipped,omitempty"`
	Rows         []BomRowResult `json:"rows"`
}

// ResyncSummary counts resync outcomes by state.
type ResyncSummary struct {
	Total    int `json:"total"`
	UpToDate int `json:"up_to_date"`
	Updated  int `json:"updated"`
	NotFound int `json:"not_found"`
	Errors   int `json:"errors"`
}

// Add accounts for one status.
func (s *ResyncSummary) Add(st ResyncStatus) {
	s.Total++
	switch st.Status {
	case ResyncUpToDate:
		s.UpToDate++
	case ResyncUpdated:
		s.Updated++
	case ResyncNotFound:
		s.NotFound++
	default:
		s.Errors++
	}
}

// SyncRun is one recorded batch run (BOM import or bulk resync).
type SyncRun struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Target     string     `json:"target"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
}

// SyncRunItem is one recorded per-item outcome of a SyncRun.
type SyncRunItem struct {
	RunID       string `json:"run_id"`
	Reference   string `json:"reference"`
	Supplier    string `json:"supplier"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	InvenTreeID *int64 `json:"inventree_id,omitempty"`
}
