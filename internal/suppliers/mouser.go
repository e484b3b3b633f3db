package suppliers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"synctree/internal/config"
	"synctree/internal/domain"

	"go.uber.org/zap"
)

// MouserName is the supplier company name used downstream.
const MouserName = "Mouser"

// Response schema of the Mouser search API (v1).

type mouserPriceBreak struct {
	Quantity int    `json:"Quantity"`
	Price    string `json:"Price"`
	Currency string `json:"Currency"`
}

type mouserAttribute struct {
	AttributeName  string `json:"AttributeName"`
	AttributeValue string `json:"AttributeValue"`
}

type mouserPart struct {
	Availability           *string            `json:"Availability"`
	AvailabilityInStock    *string            `json:"AvailabilityInStock"`
	Category               *string            `json:"Category"`
	DataSheetURL           *string            `json:"DataSheetUrl"`
	Description            *string            `json:"Description"`
	ImagePath              *string            `json:"ImagePath"`
	IsDiscontinued         *string            `json:"IsDiscontinued"`
	LifecycleStatus        *string            `json:"LifecycleStatus"`
	Manufacturer           string             `json:"Manufacturer" validate:"required"`
	ManufacturerPartNumber string             `json:"ManufacturerPartNumber" validate:"required"`
	MouserPartNumber       string             `json:"MouserPartNumber" validate:"required,ne=N/A"`
	PriceBreaks            []mouserPriceBreak `json:"PriceBreaks"`
	ProductAttributes      []mouserAttribute  `json:"ProductAttributes"`
	ProductDetailURL       *string            `json:"ProductDetailUrl"`
}

type mouserError struct {
	ID      int    `json:"Id"`
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type mouserSearchResults struct {
	NumberOfResult int          `json:"NumberOfResult"`
	Parts          []mouserPart `json:"Parts"`
}

type mouserSearchResponse struct {
	Errors        []mouserError        `json:"Errors"`
	SearchResults *mouserSearchResults `json:"SearchResults"`
}

type mouserPartNumberRequest struct {
	SearchByPartRequest struct {
		MouserPartNumber  string `json:"mouserPartNumber"`
		PartSearchOptions string `json:"partSearchOptions"`
	} `json:"SearchByPartRequest"`
}

type mouserKeywordRequest struct {
	SearchByKeywordRequest struct {
		Keyword        string `json:"keyword"`
		Records        int    `json:"records"`
		StartingRecord int    `json:"startingRecord"`
		SearchOptions  string `json:"searchOptions"`
	} `json:"SearchByKeywordRequest"`
}

// MouserClient looks parts up through the Mouser search API.
type MouserClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewMouserClient builds a client bound to cfg's API key.
func NewMouserClient(cfg config.MouserConfig, logger *zap.Logger) *MouserClient {
	return &MouserClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.PartAPIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("mouser"),
	}
}

// Name implements Client.
func (c *MouserClient) Name() string { return MouserName }

// GetPartInfo implements Client.
func (c *MouserClient) GetPartInfo(ctx context.Context, partNumber string) (*domain.PartInfo, error) {
	return lookupWithFallback(ctx, c.logger, MouserName, strings.TrimSpace(partNumber), c.partNumberSearch, c.keywordSearch)
}

func (c *MouserClient) endpoint(path string) string {
	return c.baseURL + path + "?apiKey=" + url.QueryEscape(c.apiKey)
}

func (c *MouserClient) search(ctx context.Context, path string, body any) ([]mouserPart, error) {
	var resp mouserSearchResponse
	if err := doJSON(ctx, c.http, http.MethodPost, c.endpoint(path), nil, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		e := resp.Errors[0]
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, e.Code, e.Message)
	}
	if resp.SearchResults == nil || len(resp.SearchResults.Parts) == 0 {
		return nil, ErrNotFound
	}
	return resp.SearchResults.Parts, nil
}

func (c *MouserClient) partNumberSearch(ctx context.Context, partNumber string) (*domain.PartInfo, error) {
	var req mouserPartNumberRequest
	req.SearchByPartRequest.MouserPartNumber = partNumber
	req.SearchByPartRequest.PartSearchOptions = "Exact"

	parts, err := c.search(ctx, "/search/partnumber", req)
	if err != nil {
		return nil, err
	}

	part := parts[0]
	for _, p := range parts {
		if strings.EqualFold(p.MouserPartNumber, partNumber) || strings.EqualFold(p.ManufacturerPartNumber, partNumber) {
			part = p
			break
		}
	}
	if err := validateSchema(&part); err != nil {
		return nil, err
	}
	return convertMouserPart(&part), nil
}

// keywordSearch takes the first hit and re-fetches it by its Mouser part number.
func (c *MouserClient) keywordSearch(ctx context.Context, partNumber string) (*domain.PartInfo, error) {
	var req mouserKeywordRequest
	req.SearchByKeywordRequest.Keyword = partNumber
	req.SearchByKeywordRequest.Records = 1

	parts, err := c.search(ctx, "/search/keyword", req)
	if err != nil {
		return nil, err
	}
	sku := strings.TrimSpace(parts[0].MouserPartNumber)
	if sku == "" || sku == "N/A" {
		return nil, ErrNotFound
	}
	return c.partNumberSearch(ctx, sku)
}

func convertMouserPart(p *mouserPart) *domain.PartInfo {
	info := &domain.PartInfo{
		ManufacturerName:       strings.TrimSpace(p.Manufacturer),
		ManufacturerPartNumber: strings.TrimSpace(p.ManufacturerPartNumber),
		SupplierName:           MouserName,
		SupplierPartNumber:     strings.TrimSpace(p.MouserPartNumber),
		DatasheetURL:           optionalPtr(p.DataSheetURL),
		ImageURL:               optionalPtr(p.ImagePath),
		ProductURL:             optionalPtr(p.ProductDetailURL),
		Category:               optionalPtr(p.Category),
		IsActive:               true,
	}
	if p.Description != nil {
		info.Description = domain.TruncateDescription(*p.Description)
	}
	if p.AvailabilityInStock != nil {
		info.Stock = parseCount(*p.AvailabilityInStock)
	} else if p.Availability != nil {
		info.Stock = parseCount(*p.Availability)
	}

	if len(p.PriceBreaks) > 0 {
		info.Pricing = make(domain.PriceBreaks, len(p.PriceBreaks))
		for _, pb := range p.PriceBreaks {
			price, ok := parsePrice(pb.Price)
			if !ok || pb.Quantity <= 0 {
				continue
			}
			info.Pricing[pb.Quantity] = price
		}
		if len(info.Pricing) == 0 {
			info.Pricing = nil
		}
	}

	for _, attr := range p.ProductAttributes {
		name, value := strings.TrimSpace(attr.AttributeName), strings.TrimSpace(attr.AttributeValue)
		if name == "" || value == "" {
			continue
		}
		if strings.EqualFold(name, "Packaging") {
			if info.Packaging == nil {
				info.Packaging = optional(value)
			}
			continue
		}
		if info.Parameters == nil {
			info.Parameters = make(map[string]string)
		}
		info.Parameters[name] = value
	}

	if p.IsDiscontinued != nil && strings.EqualFold(strings.TrimSpace(*p.IsDiscontinued), "true") {
		info.IsActive = false
	} else if p.LifecycleStatus != nil && inactiveStatus(*p.LifecycleStatus) {
		info.IsActive = false
	}

	return info
}
