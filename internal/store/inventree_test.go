package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"synctree/internal/config"
	"synctree/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestInvenTree wires a chi router as a fake InvenTree server.
func newTestInvenTree(t *testing.T, register func(r chi.Router)) *InvenTreeStore {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Token secret-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	register(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return NewInvenTreeStore(config.InvenTreeConfig{
		ServerURL: server.URL + "/",
		Token:     "secret-token",
		Timeout:   5 * time.Second,
	}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestInvenTreeStore_ListCompanies_ExactName(t *testing.T) {
	var gotQuery string
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Get("/api/company/", func(w http.ResponseWriter, req *http.Request) {
			gotQuery = req.URL.RawQuery
			// InvenTree may match loosely; the client keeps exact matches only.
			writeJSON(w, http.StatusOK, `[
				{"pk": 1, "name": "Texas Instruments", "is_manufacturer": true},
				{"pk": 2, "name": "Texas Instruments Inc", "is_manufacturer": true}
			]`)
		})
	})

	companies, err := s.ListCompanies(context.Background(), CompanyFilter{Name: "Texas Instruments", IsManufacturer: PtrTo(true)})
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, int64(1), companies[0].ID)
	assert.Contains(t, gotQuery, "is_manufacturer=true")
	assert.Contains(t, gotQuery, "name=Texas+Instruments")
}

func TestInvenTreeStore_ListCategories_PaginatedAndTopLevel(t *testing.T) {
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Get("/api/part/category/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, `{"count": 2, "next": null, "results": [
				{"pk": 3, "name": "Resistors", "parent": 1},
				{"pk": 4, "name": "Resistors", "parent": null}
			]}`)
		})
	})

	top, err := s.ListCategories(context.Background(), CategoryFilter{Name: "Resistors"})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(4), top[0].ID)

	nested, err := s.ListCategories(context.Background(), CategoryFilter{Name: "Resistors", Parent: PtrTo(int64(1))})
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, int64(3), nested[0].ID)
}

func TestInvenTreeStore_CreatePart(t *testing.T) {
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Post("/api/part/", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "LM358DR", body["name"])
			assert.Equal(t, true, body["component"])
			assert.NotContains(t, body, "category", "absent optional fields are omitted")
			writeJSON(w, http.StatusCreated, `{"pk": 11, "name": "LM358DR", "description": "Op amp", "component": true, "purchaseable": true, "active": true, "IPN": null, "image": null}`)
		})
	})

	part, err := s.CreatePart(context.Background(), &domain.Part{Name: "LM358DR", Description: "Op amp", Component: true, Purchaseable: true, Active: true})
	require.NoError(t, err)
	assert.Equal(t, int64(11), part.ID)
	assert.False(t, part.HasImage())
	assert.Empty(t, part.IPN)
}

func TestInvenTreeStore_UploadPartImage(t *testing.T) {
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Patch("/api/part/{id}/", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "11", chi.URLParam(req, "id"))
			file, header, err := req.FormFile("image")
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "img.jpg", header.Filename)
			assert.Equal(t, "jpegbytes", string(data))
			writeJSON(w, http.StatusOK, `{"pk": 11, "image": "/media/part_images/img.jpg"}`)
		})
	})

	require.NoError(t, s.UploadPartImage(context.Background(), 11, "img.jpg", strings.NewReader("jpegbytes")))
}

func TestInvenTreeStore_PriceBreaks(t *testing.T) {
	var deleted string
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Get("/api/company/price-break/", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "9", req.URL.Query().Get("part"))
			writeJSON(w, http.StatusOK, `[
				{"pk": 1, "part": 9, "quantity": 1, "price": "0.420000", "updated": "2026-01-02T03:04:05Z"},
				{"pk": 2, "part": 9, "quantity": 10.0, "price": 0.3, "updated": null}
			]`)
		})
		r.Post("/api/company/price-break/", func(w http.ResponseWriter, req *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.EqualValues(t, 100, body["quantity"])
			assert.EqualValues(t, 4, body["supplier"])
			assert.Equal(t, "2026-03-04T05:06:07Z", body["updated"])
			writeJSON(w, http.StatusCreated, `{"pk": 3, "part": 9, "quantity": 100, "price": "0.25"}`)
		})
		r.Delete("/api/company/price-break/{id}/", func(w http.ResponseWriter, req *http.Request) {
			deleted = chi.URLParam(req, "id")
			w.WriteHeader(http.StatusNoContent)
		})
	})
	ctx := context.Background()
	stamp := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	breaks, err := s.ListPriceBreaks(ctx, 9)
	require.NoError(t, err)
	require.Len(t, breaks, 2)
	assert.InDelta(t, 0.42, breaks[0].Price, 1e-9)
	require.NotNil(t, breaks[0].Updated)
	assert.Nil(t, breaks[1].Updated)
	assert.InDelta(t, 10.0, breaks[1].Quantity, 1e-9)

	created, err := s.CreatePriceBreak(ctx, &domain.PriceBreak{Part: 9, Quantity: 100, Price: 0.25, Supplier: 4, Updated: &stamp})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
	assert.InDelta(t, 0.25, created.Price, 1e-9)

	require.NoError(t, s.DeletePriceBreak(ctx, 2))
	assert.Equal(t, "2", deleted)
}

func TestInvenTreeStore_ListSupplierParts_LoadsSupplierDetail(t *testing.T) {
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Get("/api/company/part/", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "true", req.URL.Query().Get("supplier_detail"))
			writeJSON(w, http.StatusOK, `[{"pk": 5, "part": 11, "supplier": 2, "SKU": "296-1395-1-ND", "active": true,
				"supplier_detail": {"pk": 2, "name": "Digikey", "is_supplier": true}}]`)
		})
	})

	sps, err := s.ListSupplierParts(context.Background(), SupplierPartFilter{})
	require.NoError(t, err)
	require.Len(t, sps, 1)
	assert.Equal(t, "Digikey", sps[0].SupplierName())
}

func TestInvenTreeStore_ErrorClassification(t *testing.T) {
	s := newTestInvenTree(t, func(r chi.Router) {
		r.Get("/api/part/{id}/", func(w http.ResponseWriter, req *http.Request) {
			switch chi.URLParam(req, "id") {
			case "1":
				writeJSON(w, http.StatusNotFound, `{"detail": "Not found."}`)
			case "2":
				writeJSON(w, http.StatusBadGateway, `bad gateway`)
			default:
				writeJSON(w, http.StatusOK, `{not json`)
			}
		})
		r.Post("/api/bom/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"sub_part": ["Invalid part"]}`)
		})
	})
	ctx := context.Background()

	_, err := s.GetPart(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetPart(ctx, 2)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = s.GetPart(ctx, 3)
	assert.True(t, errors.Is(err, ErrUnavailable), "malformed bodies are treated as transient")

	_, err = s.CreateBomItem(ctx, &domain.BomItem{Part: 1, SubPart: 2, Quantity: 1})
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "Invalid part")
}

func TestInvenTreeStore_Unauthorized(t *testing.T) {
	s := newTestInvenTree(t, func(r chi.Router) {})
	s.token = "wrong"

	_, err := s.ListParts(context.Background(), PartFilter{Name: "X"})
	assert.True(t, errors.Is(err, ErrRejected))
}
