package suppliers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"synctree/internal/config"
	"synctree/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	digikeyProductionURL = "https://api.digikey.com"
	digikeySandboxURL    = "https://sandbox-api.digikey.com"
)

// DigikeyName is the supplier company name used downstream.
const DigikeyName = "Digikey"

// Response schema of the Digikey product information API (v4). Only the fields
// synctree reads are declared; everything optional is a pointer or a slice.

type digikeyDescription struct {
	ProductDescription  string `json:"ProductDescription"`
	DetailedDescription string `json:"DetailedDescription"`
}

type digikeyManufacturer struct {
	ID   int    `json:"Id"`
	Name string `json:"Name" validate:"required"`
}

type digikeyCategory struct {
	CategoryID      int               `json:"CategoryId"`
	Name            string            `json:"Name"`
	ChildCategories []digikeyCategory `json:"ChildCategories"`
}

type digikeyStatus struct {
	ID     int    `json:"Id"`
	Status string `json:"Status"`
}

type digikeyParameter struct {
	ParameterText string `json:"ParameterText"`
	ValueText     string `json:"ValueText"`
}

type digikeyPrice struct {
	BreakQuantity int     `json:"BreakQuantity"`
	UnitPrice     float64 `json:"UnitPrice"`
}

type digikeyPackage struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
}

type digikeyVariation struct {
	DigiKeyProductNumber string          `json:"DigiKeyProductNumber" validate:"required"`
	PackageType          *digikeyPackage `json:"PackageType"`
	StandardPricing      []digikeyPrice  `json:"StandardPricing"`
	QuantityAvailable    *int64          `json:"QuantityAvailableforPackageType"`
}

type digikeyProduct struct {
	Description               *digikeyDescription  `json:"Description"`
	Manufacturer              *digikeyManufacturer `json:"Manufacturer" validate:"required"`
	ManufacturerProductNumber string               `json:"ManufacturerProductNumber" validate:"required"`
	ProductURL                *string              `json:"ProductUrl"`
	DatasheetURL              *string              `json:"DatasheetUrl"`
	PhotoURL                  *string              `json:"PhotoUrl"`
	QuantityAvailable         *int64               `json:"QuantityAvailable"`
	ProductStatus             *digikeyStatus       `json:"ProductStatus"`
	Discontinued              bool                 `json:"Discontinued"`
	EndOfLife                 bool                 `json:"EndOfLife"`
	Category                  *digikeyCategory     `json:"Category"`
	Parameters                []digikeyParameter   `json:"Parameters"`
	ProductVariations         []digikeyVariation   `json:"ProductVariations" validate:"min=1,dive"`
}

type digikeyDetailsResponse struct {
	Product *digikeyProduct `json:"Product" validate:"required"`
}

type digikeyKeywordRequest struct {
	Keywords string `json:"Keywords"`
	Limit    int    `json:"Limit"`
	Offset   int    `json:"Offset"`
}

type digikeyKeywordResponse struct {
	ExactMatches  []digikeyProduct `json:"ExactMatches"`
	Products      []digikeyProduct `json:"Products"`
	ProductsCount int              `json:"ProductsCount"`
}

// DigikeyClient looks parts up through the Digikey product information API.
type DigikeyClient struct {
	baseURL string
	headers map[string]string
	http    *http.Client
	logger  *zap.Logger
}

// NewDigikeyClient builds a client whose OAuth2 token source and locale come from cfg.
func NewDigikeyClient(cfg config.DigikeyConfig, logger *zap.Logger) *DigikeyClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = digikeyProductionURL
		if cfg.Sandbox {
			baseURL = digikeySandboxURL
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauthCfg.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &DigikeyClient{
		baseURL: baseURL,
		headers: map[string]string{
			"X-DIGIKEY-Client-Id":       cfg.ClientID,
			"X-DIGIKEY-Locale-Site":     cfg.LocaleSite,
			"X-DIGIKEY-Locale-Language": cfg.LocaleLanguage,
			"X-DIGIKEY-Locale-Currency": cfg.LocaleCurrency,
		},
		http:   httpClient,
		logger: logger.Named("digikey"),
	}
}

// Name implements Client.
func (c *DigikeyClient) Name() string { return DigikeyName }

// GetPartInfo implements Client.
func (c *DigikeyClient) GetPartInfo(ctx context.Context, partNumber string) (*domain.PartInfo, error) {
	return lookupWithFallback(ctx, c.logger, DigikeyName, strings.TrimSpace(partNumber), c.productDetails, c.keywordSearch)
}

func (c *DigikeyClient) productDetails(ctx context.Context, partNumber string) (*domain.PartInfo, error) {
	endpoint := c.baseURL + "/products/v4/search/" + url.PathEscape(partNumber) + "/productdetails"

	var resp digikeyDetailsResponse
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, c.headers, nil, &resp); err != nil {
		return nil, err
	}
	if err := validateSchema(&resp); err != nil {
		return nil, err
	}
	return convertDigikeyProduct(resp.Product, partNumber), nil
}

// keywordSearch takes the first search hit and re-fetches its full detail.
func (c *DigikeyClient) keywordSearch(ctx context.Context, partNumber string) (*domain.PartInfo, error) {
	body := digikeyKeywordRequest{Keywords: partNumber, Limit: 1, Offset: 0}

	var resp digikeyKeywordResponse
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/products/v4/search/keyword", c.headers, body, &resp); err != nil {
		return nil, err
	}

	hits := append(resp.ExactMatches, resp.Products...)
	for _, hit := range hits {
		if len(hit.ProductVariations) == 0 || hit.ProductVariations[0].DigiKeyProductNumber == "" {
			continue
		}
		return c.productDetails(ctx, hit.ProductVariations[0].DigiKeyProductNumber)
	}
	return nil, ErrNotFound
}

// convertDigikeyProduct maps a validated product onto PartInfo. The variation whose
// Digikey number matches the requested identifier supplies SKU, packaging and
// pricing; otherwise the first variation is used.
func convertDigikeyProduct(p *digikeyProduct, requested string) *domain.PartInfo {
	variation := p.ProductVariations[0]
	for _, v := range p.ProductVariations {
		if strings.EqualFold(v.DigiKeyProductNumber, requested) {
			variation = v
			break
		}
	}

	info := &domain.PartInfo{
		ManufacturerName:       strings.TrimSpace(p.Manufacturer.Name),
		ManufacturerPartNumber: strings.TrimSpace(p.ManufacturerProductNumber),
		SupplierName:           DigikeyName,
		SupplierPartNumber:     strings.TrimSpace(variation.DigiKeyProductNumber),
		DatasheetURL:           optionalPtr(p.DatasheetURL),
		ImageURL:               optionalPtr(p.PhotoURL),
		ProductURL:             optionalPtr(p.ProductURL),
		Stock:                  p.QuantityAvailable,
		IsActive:               true,
	}

	if p.Description != nil {
		desc := p.Description.ProductDescription
		if desc == "" {
			desc = p.Description.DetailedDescription
		}
		info.Description = domain.TruncateDescription(desc)
	}
	if p.Category != nil {
		info.Category = optional(leafCategory(*p.Category))
	}
	if variation.PackageType != nil {
		info.Packaging = optional(variation.PackageType.Name)
	}
	if variation.QuantityAvailable != nil {
		info.Stock = variation.QuantityAvailable
	}

	if len(variation.StandardPricing) > 0 {
		info.Pricing = make(domain.PriceBreaks, len(variation.StandardPricing))
		for _, price := range variation.StandardPricing {
			if price.BreakQuantity <= 0 || price.UnitPrice < 0 {
				continue
			}
			info.Pricing[price.BreakQuantity] = price.UnitPrice
		}
		if len(info.Pricing) == 0 {
			info.Pricing = nil
		}
	}

	if len(p.Parameters) > 0 {
		info.Parameters = make(map[string]string, len(p.Parameters))
		for _, param := range p.Parameters {
			name, value := strings.TrimSpace(param.ParameterText), strings.TrimSpace(param.ValueText)
			if name == "" || value == "" || value == "-" {
				continue
			}
			info.Parameters[name] = value
		}
	}

	if p.Discontinued || p.EndOfLife {
		info.IsActive = false
	} else if p.ProductStatus != nil && inactiveStatus(p.ProductStatus.Status) {
		info.IsActive = false
	}

	return info
}

// leafCategory follows the first child chain to the most specific category name.
func leafCategory(c digikeyCategory) string {
	for len(c.ChildCategories) > 0 {
		c = c.ChildCategories[0]
	}
	return c.Name
}
