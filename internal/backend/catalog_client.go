package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/services"
)

// serviceTokenHeader authenticates this service to the commerce backend on
// routes that carry no end-user credential.
const serviceTokenHeader = "X-Service-Token"

// CatalogClient resolves products and their variant matrices from the
// commerce backend. Catalog reads carry no user bearer token; when a service
// token is configured it is sent instead.
type CatalogClient struct {
	base         *url.URL
	client       HTTPClient
	serviceToken string
}

// CatalogOption customises a CatalogClient.
type CatalogOption func(*CatalogClient)

// WithServiceToken sets the service-to-service credential attached to
// catalog requests.
func WithServiceToken(token string) CatalogOption {
	return func(c *CatalogClient) {
		c.serviceToken = strings.TrimSpace(token)
	}
}

// NewCatalogClient constructs a CatalogClient for the given backend base URL.
func NewCatalogClient(baseURL string, client HTTPClient, opts ...CatalogOption) (*CatalogClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	c := &CatalogClient{base: parsed, client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

var _ services.ProductFinder = (*CatalogClient)(nil)

// FindProduct fetches a product with its variants and option lists.
func (c *CatalogClient) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	endpoint := path.Join("/products", url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL(c.base, endpoint), nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("backend: build request: %w", err)
	}
	if c.serviceToken != "" {
		req.Header.Set(serviceTokenHeader, c.serviceToken)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Product{}, errorFromResponse(resp)
	}

	var payload productEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Product{}, fmt.Errorf("backend: decode product: %w", err)
	}
	return payload.Product.toDomain(), nil
}

type productEnvelope struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID          string                `json:"id"`
	Slug        string                `json:"slug"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	ImageURL    string                `json:"image_url"`
	Variants    []variantPayload      `json:"variants"`
	Options     variantOptionsPayload `json:"options"`
}

type variantPayload struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	SizeID        string `json:"size_id"`
	PlanterID     string `json:"planter_id"`
	ColorID       string `json:"color_id"`
	UnitPrice     int64  `json:"unit_price"`
	StockQuantity int    `json:"stock_quantity"`
	ImageURL      string `json:"image_url"`
}

type variantOptionsPayload struct {
	Sizes    []optionPayload `json:"sizes"`
	Planters []optionPayload `json:"planters"`
	Colors   []optionPayload `json:"colors"`
}

type optionPayload struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Swatch string `json:"swatch,omitempty"`
}

func (p productPayload) toDomain() domain.Product {
	product := domain.Product{
		ID:          strings.TrimSpace(p.ID),
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		VariantOptions: domain.VariantOptions{
			Sizes:    optionsToDomain(p.Options.Sizes),
			Planters: optionsToDomain(p.Options.Planters),
			Colors:   optionsToDomain(p.Options.Colors),
		},
	}
	for _, v := range p.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:  strings.TrimSpace(v.ID),
			SKU: strings.TrimSpace(v.SKU),
			Attributes: domain.VariantAttributes{
				SizeID:    v.SizeID,
				PlanterID: v.PlanterID,
				ColorID:   v.ColorID,
			},
			UnitPrice:     v.UnitPrice,
			StockQuantity: v.StockQuantity,
			ImageURL:      v.ImageURL,
		})
	}
	return product
}

func optionsToDomain(options []optionPayload) []domain.VariantOption {
	out := make([]domain.VariantOption, 0, len(options))
	for _, opt := range options {
		out = append(out, domain.VariantOption{ID: opt.ID, Label: opt.Label, Swatch: opt.Swatch})
	}
	return out
}
