package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	domain "github.com/evergrove/storefront/internal/domain"
)

const maxCartBodySize = 64 * 1024

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEmptyBody        = errors.New("request body is required")
	errNoEditableFields = errors.New("no editable fields provided")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCartBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func isJSONNull(value json.RawMessage) bool {
	return strings.EqualFold(strings.TrimSpace(string(value)), "null")
}

// cartItemPayload is the JSON rendering of a cart line shared by the guest
// and authenticated cart endpoints.
type cartItemPayload struct {
	ClientID   string                 `json:"client_id,omitempty"`
	ID         string                 `json:"id,omitempty"`
	Type       string                 `json:"type"`
	SKU        string                 `json:"sku,omitempty"`
	TreeID     string                 `json:"tree_id,omitempty"`
	PlanID     string                 `json:"plan_id,omitempty"`
	Quantity   int                    `json:"quantity"`
	UnitPrice  int64                  `json:"unit_price"`
	Name       string                 `json:"name,omitempty"`
	ImageURL   string                 `json:"image_url,omitempty"`
	Dedication *dedicationJSONPayload `json:"dedication,omitempty"`
}

type dedicationJSONPayload struct {
	Name     string `json:"name,omitempty"`
	Occasion string `json:"occasion,omitempty"`
	Message  string `json:"message,omitempty"`
}

type cartResponse struct {
	Items []cartItemPayload `json:"items"`
}

func buildCartResponse(items []domain.CartItem) cartResponse {
	payload := cartResponse{Items: make([]cartItemPayload, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, buildCartItemPayload(item))
	}
	return payload
}

func buildCartItemPayload(item domain.CartItem) cartItemPayload {
	out := cartItemPayload{
		ClientID:  item.ClientID,
		ID:        item.ServerID,
		Type:      string(item.Kind),
		SKU:       item.SKU,
		TreeID:    item.TreeID,
		PlanID:    item.PlanID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Name:      item.Name,
		ImageURL:  item.ImageURL,
	}
	if item.Dedication != nil {
		out.Dedication = &dedicationJSONPayload{
			Name:     item.Dedication.Name,
			Occasion: item.Dedication.Occasion,
			Message:  item.Dedication.Message,
		}
	}
	return out
}

func dedicationFromJSON(payload *dedicationJSONPayload) *domain.Dedication {
	if payload == nil {
		return nil
	}
	return &domain.Dedication{
		Name:     payload.Name,
		Occasion: payload.Occasion,
		Message:  payload.Message,
	}
}
