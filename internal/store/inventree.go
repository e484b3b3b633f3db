package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"synctree/internal/config"
	"synctree/internal/domain"
	"synctree/internal/metrics"

	"go.uber.org/zap"
)

// Predefined errors for downstream inventory operations
var (
	ErrNotFound    = errors.New("store: entity not found")
	ErrUnavailable = errors.New("store: inventory server unavailable")
	ErrRejected    = errors.New("store: request rejected by inventory server")
)

const maxErrorBody = 1024

var _ Inventory = (*InvenTreeStore)(nil)

// InvenTreeStore implements Inventory against the InvenTree REST API.
type InvenTreeStore struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewInvenTreeStore creates a new InvenTreeStore bound to cfg's server and token.
func NewInvenTreeStore(cfg config.InvenTreeConfig, logger *zap.Logger) *InvenTreeStore {
	return &InvenTreeStore{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("inventree"),
	}
}

// flexFloat accepts both JSON numbers and decimal strings, since InvenTree serializes
// money fields as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type priceBreakWire struct {
	ID       int64      `json:"pk,omitempty"`
	Part     int64      `json:"part"`
	Quantity flexFloat  `json:"quantity"`
	Price    flexFloat  `json:"price"`
	Supplier int64      `json:"supplier,omitempty"`
	Updated  *time.Time `json:"updated,omitempty"`
}

func (w priceBreakWire) toDomain() domain.PriceBreak {
	pb := domain.PriceBreak{
		ID:       w.ID,
		Part:     w.Part,
		Quantity: float64(w.Quantity),
		Price:    float64(w.Price),
		Supplier: w.Supplier,
		Updated:  w.Updated,
	}
	return pb
}

type bomItemWire struct {
	ID        int64     `json:"pk,omitempty"`
	Part      int64     `json:"part"`
	SubPart   int64     `json:"sub_part"`
	Quantity  flexFloat `json:"quantity"`
	Reference string    `json:"reference,omitempty"`
}

func (w bomItemWire) toDomain() domain.BomItem {
	return domain.BomItem{ID: w.ID, Part: w.Part, SubPart: w.SubPart, Quantity: float64(w.Quantity), Reference: w.Reference}
}

// --- transport ---

func (s *InvenTreeStore) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("store: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+s.token)
	return req, nil
}

// send executes req and classifies the outcome. The response body is returned for 2xx.
func (s *InvenTreeStore) send(req *http.Request, entity, op string) (_ []byte, err error) {
	timer := metrics.NewTimer()
	defer func() {
		metrics.RecordInventoryCall(entity, op, err, timer.Duration())
	}()

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, entity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: read body: %v", ErrUnavailable, op, entity, err)
		}
		return data, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	snippet = bytes.TrimSpace(snippet)
	s.logger.Debug("inventory call failed",
		zap.String("entity", entity),
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", snippet))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, op, entity)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, op, entity, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, op, entity, resp.StatusCode, snippet)
	}
}

func (s *InvenTreeStore) doJSON(ctx context.Context, entity, op, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", entity, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := s.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := s.send(req, entity, op)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: malformed response: %v", ErrUnavailable, op, entity, err)
	}
	return nil
}

// listJSON decodes both the plain array and the paginated {"results": [...]} shapes.
func listJSON[T any](ctx context.Context, s *InvenTreeStore, entity, path string, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := s.doJSON(ctx, entity, "list", http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: list %s: malformed response: %v", ErrUnavailable, entity, err)
		}
		return items, nil
	}

	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("%w: list %s: malformed response: %v", ErrUnavailable, entity, err)
	}
	return page.Results, nil
}

func itemPath(collection string, id int64) string {
	return collection + strconv.FormatInt(id, 10) + "/"
}

func boolParam(q url.Values, key string, v *bool) {
	if v != nil {
		q.Set(key, strconv.FormatBool(*v))
	}
}

func idParam(q url.Values, key string, id int64) {
	if id != 0 {
		q.Set(key, strconv.FormatInt(id, 10))
	}
}

// --- CompanyStorer Implementation ---

const companiesPath = "/api/company/"

func (s *InvenTreeStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]domain.Company, error) {
	q := url.Values{}
	if filter.Name != "" {
		q.Set("name", filter.Name)
	}
	boolParam(q, "is_manufacturer", filter.IsManufacturer)
	boolParam(q, "is_supplier", filter.IsSupplier)

	companies, err := listJSON[domain.Company](ctx, s, "company", companiesPath, q)
	if err != nil {
		return nil, err
	}

	matched := companies[:0]
	for _, c := range companies {
		if filter.Name != "" && c.Name != filter.Name {
			continue
		}
		matched = append(matched, c)
	}
	return matched, nil
}

func (s *InvenTreeStore) CreateCompany(ctx context.Context, company *domain.Company) (*domain.Company, error) {
	var created domain.Company
	if err := s.doJSON(ctx, "company", "create", http.MethodPost, companiesPath, nil, company, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// --- CategoryStorer Implementation ---

const categoriesPath = "/api/part/category/"

// ListCategories matches name and parent exactly; a nil filter parent selects top-level categories.
func (s *InvenTreeStore) ListCategories(ctx context.Context, filter CategoryFilter) ([]domain.Category, error) {
	q := url.Values{}
	if filter.Name != "" {
		q.Set("name", filter.Name)
	}
	if filter.Parent != nil {
		idParam(q, "parent", *filter.Parent)
	}

	categories, err := listJSON[domain.Category](ctx, s, "category", categoriesPath, q)
	if err != nil {
		return nil, err
	}

	matched := categories[:0]
	for _, c := range categories {
		if filter.Name != "" && c.Name != filter.Name {
			continue
		}
		if !sameParent(c.Parent, filter.Parent) {
			continue
		}
		matched = append(matched, c)
	}
	return matched, nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *InvenTreeStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	var created domain.Category
	if err := s.doJSON(ctx, "category", "create", http.MethodPost, categoriesPath, nil, category, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// --- PartStorer Implementation ---

const partsPath = "/api/part/"

func (s *InvenTreeStore) ListParts(ctx context.Context, filter PartFilter) ([]domain.Part, error) {
	q := url.Values{}
	if filter.Name != "" {
		q.Set("name", filter.Name)
	}
	if filter.IPN != "" {
		q.Set("IPN", filter.IPN)
	}
	if filter.Category != nil {
		idParam(q, "category", *filter.Category)
	}

	parts, err := listJSON[domain.Part](ctx, s, "part", partsPath, q)
	if err != nil {
		return nil, err
	}

	matched := parts[:0]
	for _, p := range parts {
		if filter.Name != "" && p.Name != filter.Name {
			continue
		}
		if filter.IPN != "" && p.IPN != filter.IPN {
			continue
		}
		if filter.Category != nil && (p.Category == nil || *p.Category != *filter.Category) {
			continue
		}
		matched = append(matched, p)
	}
	return matched, nil
}

func (s *InvenTreeStore) GetPart(ctx context.Context, id int64) (*domain.Part, error) {
	var part domain.Part
	if err := s.doJSON(ctx, "part", "get", http.MethodGet, itemPath(partsPath, id), nil, nil, &part); err != nil {
		return nil, err
	}
	return &part, nil
}

func (s *InvenTreeStore) CreatePart(ctx context.Context, part *domain.Part) (*domain.Part, error) {
	var created domain.Part
	if err := s.doJSON(ctx, "part", "create", http.MethodPost, partsPath, nil, part, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UploadPartImage PATCHes the part with a multipart "image" field.
func (s *InvenTreeStore) UploadPartImage(ctx context.Context, id int64, filename string, image io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return fmt.Errorf("store: UploadPartImage failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, image); err != nil {
		return fmt.Errorf("store: UploadPartImage failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("store: UploadPartImage failed to close form: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPatch, itemPath(partsPath, id), nil, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	_, err = s.send(req, "part_image", "upload")
	return err
}

// --- ManufacturerPartStorer Implementation ---

const (
	manufacturerPartsPath = "/api/company/part/manufacturer/"
	mpParametersPath      = "/api/company/part/manufacturer/parameter/"
)

func (s *InvenTreeStore) ListManufacturerParts(ctx context.Context, filter ManufacturerPartFilter) ([]domain.ManufacturerPart, error) {
	q := url.Values{}
	idParam(q, "part", filter.Part)
	idParam(q, "manufacturer", filter.Manufacturer)
	if filter.MPN != "" {
		q.Set("MPN", filter.MPN)
	}

	mps, err := listJSON[domain.ManufacturerPart](ctx, s, "manufacturer_part", manufacturerPartsPath, q)
	if err != nil {
		return nil, err
	}

	matched := mps[:0]
	for _, mp := range mps {
		if filter.MPN != "" && mp.MPN != filter.MPN {
			continue
		}
		if filter.Manufacturer != 0 && mp.Manufacturer != filter.Manufacturer {
			continue
		}
		if filter.Part != 0 && mp.Part != filter.Part {
			continue
		}
		matched = append(matched, mp)
	}
	return matched, nil
}

func (s *InvenTreeStore) CreateManufacturerPart(ctx context.Context, mp *domain.ManufacturerPart) (*domain.ManufacturerPart, error) {
	var created domain.ManufacturerPart
	if err := s.doJSON(ctx, "manufacturer_part", "create", http.MethodPost, manufacturerPartsPath, nil, mp, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *InvenTreeStore) CreateManufacturerPartParameter(ctx context.Context, param *domain.ManufacturerPartParameter) (*domain.ManufacturerPartParameter, error) {
	var created domain.ManufacturerPartParameter
	if err := s.doJSON(ctx, "manufacturer_part_parameter", "create", http.MethodPost, mpParametersPath, nil, param, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// --- SupplierPartStorer Implementation ---

const supplierPartsPath = "/api/company/part/"

func (s *InvenTreeStore) ListSupplierParts(ctx context.Context, filter SupplierPartFilter) ([]domain.SupplierPart, error) {
	q := url.Values{}
	idParam(q, "part", filter.Part)
	idParam(q, "supplier", filter.Supplier)
	if filter.SKU != "" {
		q.Set("SKU", filter.SKU)
	}
	q.Set("supplier_detail", "true")

	sps, err := listJSON[domain.SupplierPart](ctx, s, "supplier_part", supplierPartsPath, q)
	if err != nil {
		return nil, err
	}

	matched := sps[:0]
	for _, sp := range sps {
		if filter.SKU != "" && sp.SKU != filter.SKU {
			continue
		}
		if filter.Supplier != 0 && sp.Supplier != filter.Supplier {
			continue
		}
		if filter.Part != 0 && sp.Part != filter.Part {
			continue
		}
		matched = append(matched, sp)
	}
	return matched, nil
}

func (s *InvenTreeStore) CreateSupplierPart(ctx context.Context, sp *domain.SupplierPart) (*domain.SupplierPart, error) {
	var created domain.SupplierPart
	if err := s.doJSON(ctx, "supplier_part", "create", http.MethodPost, supplierPartsPath, nil, sp, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *InvenTreeStore) UpdateSupplierPart(ctx context.Context, id int64, update SupplierPartUpdate) (*domain.SupplierPart, error) {
	var updated domain.SupplierPart
	if err := s.doJSON(ctx, "supplier_part", "update", http.MethodPatch, itemPath(supplierPartsPath, id), nil, update, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// --- PriceBreakStorer Implementation ---

const priceBreaksPath = "/api/company/price-break/"

func (s *InvenTreeStore) ListPriceBreaks(ctx context.Context, supplierPartID int64) ([]domain.PriceBreak, error) {
	q := url.Values{}
	idParam(q, "part", supplierPartID)

	wires, err := listJSON[priceBreakWire](ctx, s, "price_break", priceBreaksPath, q)
	if err != nil {
		return nil, err
	}

	breaks := make([]domain.PriceBreak, 0, len(wires))
	for _, w := range wires {
		if w.Part != 0 && w.Part != supplierPartID {
			continue
		}
		breaks = append(breaks, w.toDomain())
	}
	return breaks, nil
}

func (s *InvenTreeStore) CreatePriceBreak(ctx context.Context, pb *domain.PriceBreak) (*domain.PriceBreak, error) {
	updated := time.Now().UTC()
	if pb.Updated != nil {
		updated = *pb.Updated
	}
	body := priceBreakWire{
		Part:     pb.Part,
		Quantity: flexFloat(pb.Quantity),
		Price:    flexFloat(pb.Price),
		Supplier: pb.Supplier,
		Updated:  &updated,
	}

	var created priceBreakWire
	if err := s.doJSON(ctx, "price_break", "create", http.MethodPost, priceBreaksPath, nil, body, &created); err != nil {
		return nil, err
	}
	out := created.toDomain()
	return &out, nil
}

func (s *InvenTreeStore) DeletePriceBreak(ctx context.Context, id int64) error {
	return s.doJSON(ctx, "price_break", "delete", http.MethodDelete, itemPath(priceBreaksPath, id), nil, nil, nil)
}

// --- BomItemStorer Implementation ---

const bomItemsPath = "/api/bom/"

func (s *InvenTreeStore) ListBomItems(ctx context.Context, filter BomItemFilter) ([]domain.BomItem, error) {
	q := url.Values{}
	idParam(q, "part", filter.Part)
	idParam(q, "sub_part", filter.SubPart)

	wires, err := listJSON[bomItemWire](ctx, s, "bom_item", bomItemsPath, q)
	if err != nil {
		return nil, err
	}

	items := make([]domain.BomItem, 0, len(wires))
	for _, w := range wires {
		if filter.Part != 0 && w.Part != filter.Part {
			continue
		}
		if filter.SubPart != 0 && w.SubPart != filter.SubPart {
			continue
		}
		items = append(items, w.toDomain())
	}
	return items, nil
}

func (s *InvenTreeStore) CreateBomItem(ctx context.Context, item *domain.BomItem) (*domain.BomItem, error) {
	body := bomItemWire{Part: item.Part, SubPart: item.SubPart, Quantity: flexFloat(item.Quantity), Reference: item.Reference}

	var created bomItemWire
	if err := s.doJSON(ctx, "bom_item", "create", http.MethodPost, bomItemsPath, nil, body, &created); err != nil {
		return nil, err
	}
	out := created.toDomain()
	return &out, nil
}
