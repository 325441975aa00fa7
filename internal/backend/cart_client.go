package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/services"
)

// HTTPClient matches the subset of http.Client used by the backend clients.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// CartClient implements services.ServerCartClient over the commerce backend's
// REST cart endpoints. It holds no cart state of its own.
type CartClient struct {
	base   *url.URL
	client HTTPClient
}

// NewCartClient constructs a CartClient for the given backend base URL.
func NewCartClient(baseURL string, client HTTPClient) (*CartClient, error) {
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
	return &CartClient{base: parsed, client: client}, nil
}

var _ services.ServerCartClient = (*CartClient)(nil)

// GetCart fetches the authenticated user's cart.
func (c *CartClient) GetCart(ctx context.Context, token string) ([]domain.CartItem, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/cart", nil, token)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var payload cartEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("backend: decode cart: %w", err)
	}
	return itemsToDomain(payload.Items), nil
}

// AddItem appends a line to the server cart. The backend applies the same
// line-identity accumulation rule the client does, so duplicate-key adds are
// additive.
func (c *CartClient) AddItem(ctx context.Context, token string, item domain.CartItem) (domain.CartItem, error) {
	body, err := addItemPayloadFromDomain(item)
	if err != nil {
		return domain.CartItem{}, err
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/cart/items", body, token)
	if err != nil {
		return domain.CartItem{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return domain.CartItem{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return domain.CartItem{}, errorFromResponse(resp)
	}

	var payload itemEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.CartItem{}, fmt.Errorf("backend: decode cart item: %w", err)
	}
	return payload.Item.toDomain(), nil
}

// UpdateItem patches quantity and/or dedication of a server cart line.
func (c *CartClient) UpdateItem(ctx context.Context, token, itemID string, patch services.ServerCartItemPatch) (domain.CartItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CartItem{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	body := map[string]any{}
	if patch.Quantity != nil {
		body["quantity"] = *patch.Quantity
	}
	if patch.DedicationSet {
		if patch.Dedication == nil {
			body["dedication"] = nil
		} else {
			body["dedication"] = dedicationPayloadFromDomain(patch.Dedication)
		}
	}
	if len(body) == 0 {
		return domain.CartItem{}, fmt.Errorf("%w: no editable fields provided", ErrInvalidInput)
	}

	endpoint := path.Join("/cart/items", url.PathEscape(itemID))
	req, err := c.newJSONRequest(ctx, http.MethodPut, endpoint, body, token)
	if err != nil {
		return domain.CartItem{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return domain.CartItem{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.CartItem{}, errorFromResponse(resp)
	}

	var payload itemEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.CartItem{}, fmt.Errorf("backend: decode cart item: %w", err)
	}
	return payload.Item.toDomain(), nil
}

// RemoveItem deletes a server cart line.
func (c *CartClient) RemoveItem(ctx context.Context, token, itemID string) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	endpoint := path.Join("/cart/items", url.PathEscape(itemID))
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil, token)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errorFromResponse(resp)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

// Clear empties the entire server cart.
func (c *CartClient) Clear(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/cart", nil, token)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errorFromResponse(resp)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

func (c *CartClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func (c *CartClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, resolveURL(c.base, endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *CartClient) newJSONRequest(ctx context.Context, method, endpoint string, payload any, token string) (*http.Request, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("backend: encode payload: %w", err)
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf, token)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// resolveURL appends the endpoint to the base URL, preserving any path
// prefix the base carries (e.g. a backend mounted under /api).
func resolveURL(base *url.URL, endpoint string) string {
	if endpoint == "" {
		return base.String()
	}
	joined, err := url.JoinPath(base.String(), endpoint)
	if err != nil {
		return base.String()
	}
	return joined
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	sentinel := ErrUnavailable
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		sentinel = ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		sentinel = ErrInvalidInput
	}

	type errorPayload struct {
		Code    string `json:"error"`
		Message string `json:"message"`
	}
	var payload errorPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
			return fmt.Errorf("%w: %s (%s)", sentinel, payload.Message, strings.TrimSpace(payload.Code))
		}
	}
	return fmt.Errorf("%w: status %d %s", sentinel, resp.StatusCode, http.StatusText(resp.StatusCode))
}

type cartEnvelope struct {
	Items []cartItemPayload `json:"items"`
}

type itemEnvelope struct {
	Item cartItemPayload `json:"item"`
}

type cartItemPayload struct {
	ID               string             `json:"id"`
	Type             string             `json:"type"`
	ProductVariantID string             `json:"product_variant_id,omitempty"`
	TreeID           string             `json:"tree_id,omitempty"`
	PlanID           string             `json:"plan_id,omitempty"`
	Quantity         int                `json:"quantity"`
	UnitPrice        int64              `json:"unit_price"`
	Name             string             `json:"name,omitempty"`
	ImageURL         string             `json:"image_url,omitempty"`
	Dedication       *dedicationPayload `json:"dedication,omitempty"`
}

type dedicationPayload struct {
	Name     string `json:"name,omitempty"`
	Occasion string `json:"occasion,omitempty"`
	Message  string `json:"message,omitempty"`
}

type addItemPayload struct {
	Type             string             `json:"type"`
	ProductVariantID string             `json:"product_variant_id,omitempty"`
	TreeID           string             `json:"tree_id,omitempty"`
	PlanID           string             `json:"plan_id,omitempty"`
	Quantity         int                `json:"quantity"`
	Dedication       *dedicationPayload `json:"dedication,omitempty"`
}

func addItemPayloadFromDomain(item domain.CartItem) (addItemPayload, error) {
	if !item.Kind.Valid() {
		return addItemPayload{}, fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, item.Kind)
	}
	if item.Quantity < 1 {
		return addItemPayload{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	payload := addItemPayload{
		Type:     string(item.Kind),
		Quantity: item.Quantity,
	}
	if item.Kind.IsTree() {
		payload.TreeID = strings.TrimSpace(item.TreeID)
		payload.PlanID = strings.TrimSpace(item.PlanID)
		payload.Dedication = dedicationPayloadFromDomain(item.Dedication)
		return payload, nil
	}
	payload.ProductVariantID = strings.TrimSpace(item.SKU)
	return payload, nil
}

func dedicationPayloadFromDomain(d *domain.Dedication) *dedicationPayload {
	if d == nil {
		return nil
	}
	return &dedicationPayload{Name: d.Name, Occasion: d.Occasion, Message: d.Message}
}

func itemsToDomain(items []cartItemPayload) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	return out
}

func (p cartItemPayload) toDomain() domain.CartItem {
	item := domain.CartItem{
		ServerID:  strings.TrimSpace(p.ID),
		Kind:      domain.CartItemKind(strings.TrimSpace(p.Type)),
		SKU:       strings.TrimSpace(p.ProductVariantID),
		TreeID:    strings.TrimSpace(p.TreeID),
		PlanID:    strings.TrimSpace(p.PlanID),
		Quantity:  p.Quantity,
		UnitPrice: p.UnitPrice,
		Name:      p.Name,
		ImageURL:  p.ImageURL,
	}
	if p.Dedication != nil {
		item.Dedication = &domain.Dedication{
			Name:     p.Dedication.Name,
			Occasion: p.Dedication.Occasion,
			Message:  p.Dedication.Message,
		}
	}
	return item
}
