package domain

import "time"

// The types below mirror the InvenTree entities synctree reads and writes.
// The json tags follow the InvenTree REST field names.

// Company is a manufacturer, supplier or customer.
type Company struct {
	ID             int64  `json:"pk,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	IsManufacturer bool   `json:"is_manufacturer"`
	IsSupplier     bool   `json:"is_supplier"`
	IsCustomer     bool   `json:"is_customer"`
}

// Category is a node of the part category tree.
type Category struct {
	ID     int64  `json:"pk,omitempty"`
	Name   string `json:"name"`
	Parent *int64 `json:"parent,omitempty"`
}

// Part is an InvenTree part, either a purchasable component or an assembly.
type Part struct {
	ID           int64   `json:"pk,omitempty"`
	Name         string  `json:"name"`
	IPN          string  `json:"IPN,omitempty"`
	Description  string  `json:"description"`
	Category     *int64  `json:"category,omitempty"`
	Image        *string `json:"image,omitempty"`
	Revision     string  `json:"revision,omitempty"`
	Component    bool    `json:"component"`
	Assembly     bool    `json:"assembly"`
	Purchaseable bool    `json:"purchaseable"`
	Active       bool    `json:"active"`
}

// HasImage reports whether the part already carries an image.
func (p *Part) HasImage() bool {
	return p.Image != nil && *p.Image != ""
}

// ManufacturerPart links a Part to a manufacturer and its MPN.
type ManufacturerPart struct {
	ID           int64  `json:"pk,omitempty"`
	Part         int64  `json:"part"`
	Manufacturer int64  `json:"manufacturer"`
	MPN          string `json:"MPN"`
	Description  string `json:"description,omitempty"`
	Link         string `json:"link"`
	Note         string `json:"note,omitempty"`
}

// ManufacturerPartParameter is a free-form name/value pair on a ManufacturerPart.
type ManufacturerPartParameter struct {
	ID               int64  `json:"pk,omitempty"`
	ManufacturerPart int64  `json:"manufacturer_part"`
	Name             string `json:"name"`
	Value            string `json:"value"`
}

// SupplierPart links a Part to a supplier and the supplier's SKU.
type SupplierPart struct {
	ID               int64    `json:"pk,omitempty"`
	Part             int64    `json:"part"`
	Supplier         int64    `json:"supplier"`
	SupplierDetail   *Company `json:"supplier_detail,omitempty"`
	ManufacturerPart *int64   `json:"manufacturer_part,omitempty"`
	SKU              string   `json:"SKU"`
	MPN              string   `json:"MPN,omitempty"`
	Description      string   `json:"description,omitempty"`
	Link             string   `json:"link"`
	Note             string   `json:"note,omitempty"`
	Packaging        *string  `json:"packaging,omitempty"`
	Active           bool     `json:"active"`
}

// SupplierName returns the linked supplier company name, if the detail was loaded.
func (s *SupplierPart) SupplierName() string {
	if s.SupplierDetail == nil {
		return ""
	}
	return s.SupplierDetail.Name
}

// PriceBreak is a single quantity/price pair owned by a SupplierPart.
type PriceBreak struct {
	ID       int64      `json:"pk,omitempty"`
	Part     int64      `json:"part"`
	Quantity float64    `json:"quantity"`
	Price    float64    `json:"price"`
	Supplier int64      `json:"supplier,omitempty"`
	Updated  *time.Time `json:"updated,omitempty"`
}

// BomItem links an assembly part to one of its sub-parts.
type BomItem struct {
	ID        int64   `json:"pk,omitempty"`
	Part      int64   `json:"part"`
	SubPart   int64   `json:"sub_part"`
	Quantity  float64 `json:"quantity"`
	Reference string  `json:"reference,omitempty"`
}

// SupplierPartSnapshot is the downstream state the drift detector compares against.
type SupplierPartSnapshot struct {
	ID           int64
	SKU          string
	SupplierName string
	Active       bool
	PriceBreaks  []PriceBreak
}
