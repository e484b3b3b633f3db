package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"synctree/internal/bom"
	"synctree/internal/config"
	"synctree/internal/domain"
	"synctree/internal/service"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

// Syncer is the part of service.SyncService the transport handlers use.
type Syncer interface {
	Suppliers() []string
	GetPartFromSupplier(ctx context.Context, partNumber, supplier string) (string, *domain.PartInfo, error)
	SyncPart(ctx context.Context, partNumber, supplier string) (*domain.SyncResult, error)
	CreateAssemblyPart(ctx context.Context, partNumber string) (*domain.AssemblyResult, error)
	ImportBOM(ctx context.Context, assemblyPN string, rows []domain.BomRow, progress service.BomProgress) (*domain.BomImportSummary, error)
	ResyncAll(ctx context.Context, supplier string) iter.Seq[domain.ResyncStatus]
	RecentRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
	RunItems(ctx context.Context, runID string) ([]domain.SyncRunItem, error)
}

var _ Syncer = (*service.SyncService)(nil)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	syncer   Syncer
	cfg      *config.Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(syncer Syncer, cfg *config.Config, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		syncer:   syncer,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.Named("http"),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Error("failed to encode JSON response", zap.Error(err))
		}
	}
}

// respondWithServiceError maps service and store errors onto HTTP statuses.
func (h *HTTPHandler) respondWithServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownSupplier):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPartNotFound):
		h.logger.Info(op+": part not found", zap.Error(err), zap.Bool("retryable", suppliers.IsRetryable(err)))
		h.respondWithError(w, http.StatusNotFound, "Part not found")
	case errors.Is(err, domain.ErrMissingIdentity):
		h.respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		h.logger.Warn(op+": inventory unavailable", zap.Error(err))
		h.respondWithError(w, http.StatusServiceUnavailable, "Inventory server unavailable")
	case errors.Is(err, service.ErrCreationFailed):
		h.logger.Error(op+": inventory rejected the change", zap.Error(err))
		h.respondWithError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		h.respondWithError(w, http.StatusRequestTimeout, "Request cancelled")
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

// normalizeSupplier lowercases an optional supplier name and rejects unknown ones.
func normalizeSupplier(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", true
	}
	return s, config.IsKnownSupplier(s)
}

// --- Part Handlers ---

// SyncPartInput defines the expected input for syncing a part.
type SyncPartInput struct {
	PartNumber string `json:"part_number" validate:"required,max=100"`
	Supplier   string `json:"supplier" validate:"omitempty,oneof=digikey mouser"`
}

func (h *HTTPHandler) SyncPart(w http.ResponseWriter, r *http.Request) {
	var input SyncPartInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	input.PartNumber = strings.TrimSpace(input.PartNumber)
	input.Supplier = strings.ToLower(strings.TrimSpace(input.Supplier))
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.syncer.SyncPart(r.Context(), input.PartNumber, input.Supplier)
	if err != nil {
		h.respondWithServiceError(w, "sync part", err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, result)
}

// LookupResponse is returned by the lookup endpoint.
type LookupResponse struct {
	Supplier string           `json:"supplier"`
	Part     *domain.PartInfo `json:"part"`
}

func (h *HTTPHandler) LookupPart(w http.ResponseWriter, r *http.Request) {
	partNumber := strings.TrimSpace(chi.URLParam(r, "partNumber"))
	if partNumber == "" {
		h.respondWithError(w, http.StatusBadRequest, "Part number is required")
		return
	}
	supplier, ok := normalizeSupplier(r.URL.Query().Get("supplier"))
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid supplier: must be 'digikey' or 'mouser'")
		return
	}

	key, info, err := h.syncer.GetPartFromSupplier(r.Context(), partNumber, supplier)
	if err != nil {
		h.respondWithServiceError(w, "look up part", err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, LookupResponse{Supplier: key, Part: info})
}

// --- Assembly Handlers ---

// AssemblyCreateInput defines the expected input for creating an assembly.
type AssemblyCreateInput struct {
	PartNumber string `json:"part_number" validate:"required,max=100"`
}

func (h *HTTPHandler) CreateAssembly(w http.ResponseWriter, r *http.Request) {
	var input AssemblyCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	input.PartNumber = strings.TrimSpace(input.PartNumber)
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	assembly, err := h.syncer.CreateAssemblyPart(r.Context(), input.PartNumber)
	if err != nil {
		h.respondWithServiceError(w, "create assembly", err)
		return
	}
	code := http.StatusCreated
	if assembly.Exists {
		code = http.StatusOK
	}
	h.respondWithJSON(w, code, assembly)
}

// BomSourceInput points the import at a stored BOM file instead of a request body.
type BomSourceInput struct {
	Source string `json:"source" validate:"required"`
}

// ImportBOM accepts either a CSV/TSV body or a JSON {"source": "..."} naming an s3://
// object or a file under BOM_DIR.
func (h *HTTPHandler) ImportBOM(w http.ResponseWriter, r *http.Request) {
	assemblyPN := strings.TrimSpace(chi.URLParam(r, "partNumber"))
	if assemblyPN == "" {
		h.respondWithError(w, http.StatusBadRequest, "Assembly part number is required")
		return
	}
	defer r.Body.Close()

	var (
		rows    []domain.BomRow
		skipped []domain.SkippedRow
		err     error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var input BomSourceInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
		if err := h.validate.Struct(input); err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
			return
		}
		source, confineErr := bom.ConfineSource(h.cfg.BomDir, input.Source)
		if confineErr != nil {
			h.respondWithError(w, http.StatusBadRequest, confineErr.Error())
			return
		}
		rows, skipped, err = bom.ReadSource(r.Context(), source, h.cfg.S3)
		if errors.Is(err, bom.ErrSourceNotFound) {
			h.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
	default:
		delimiter := ','
		if mediaType == "text/tab-separated-values" || strings.EqualFold(r.URL.Query().Get("format"), "tsv") {
			delimiter = '\t'
		}
		rows, skipped, err = bom.Read(r.Body, delimiter)
	}
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid BOM: "+err.Error())
		return
	}
	if len(rows) == 0 {
		h.respondWithError(w, http.StatusBadRequest, "BOM has no usable rows")
		return
	}

	summary, err := h.syncer.ImportBOM(r.Context(), assemblyPN, rows, nil)
	if err != nil {
		h.respondWithServiceError(w, "import BOM", err)
		return
	}
	summary.Skipped = skipped
	h.respondWithJSON(w, http.StatusOK, summary)
}

// --- Resync Handler ---

// Resync streams one JSON status per line while supplier parts are processed.
func (h *HTTPHandler) Resync(w http.ResponseWriter, r *http.Request) {
	supplier, ok := normalizeSupplier(r.URL.Query().Get("supplier"))
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid supplier: must be 'digikey' or 'mouser'")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	var summary domain.ResyncSummary
	for st := range h.syncer.ResyncAll(r.Context(), supplier) {
		summary.Add(st)
		if err := enc.Encode(st); err != nil {
			h.logger.Warn("resync client went away", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Warn("resync flush failed", zap.Error(err))
			return
		}
	}
	h.logger.Info("resync finished",
		zap.Int("total", summary.Total),
		zap.Int("updated", summary.Updated),
		zap.Int("not_found", summary.NotFound),
		zap.Int("errors", summary.Errors))
}

// --- Config & History Handlers ---

func (h *HTTPHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.cfg.Status())
}

func (h *HTTPHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	runs, err := h.syncer.RecentRuns(r.Context(), limit)
	if err != nil {
		h.respondWithServiceError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}
	h.respondWithJSON(w, http.StatusOK, runs)
}

func (h *HTTPHandler) GetRunItems(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	items, err := h.syncer.RunItems(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrRunNotFound.Error())
			return
		}
		h.respondWithServiceError(w, "list run items", err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"suppliers": h.syncer.Suppliers(),
	})
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/healthz", h.Healthz)
	r.Get("/api/v1/config", h.GetConfig)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/parts", func(r chi.Router) {
		r.Post("/sync", h.SyncPart)
		r.Get("/lookup/{partNumber}", h.LookupPart)
	})

	r.Route("/api/v1/assemblies", func(r chi.Router) {
		r.Post("/", h.CreateAssembly)
		r.Post("/{partNumber}/bom", h.ImportBOM)
	})

	r.Post("/api/v1/resync", h.Resync)

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Get("/", h.ListRuns)
		r.Get("/{runId}", h.GetRunItems)
	})
}
