package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/services"
)

func TestGetCartDecodesItemsAndForwardsToken(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items":[
			{"id":"srv-1","type":"product","product_variant_id":"OAK-S","quantity":2,"unit_price":4500,"name":"Oak Sapling"},
			{"id":"srv-2","type":"sponsor","tree_id":"tree-1","plan_id":"annual","quantity":1,"unit_price":900,
			 "dedication":{"name":"Ada","message":"for grandma"}}
		]}`)
	}))
	defer server.Close()

	client, err := NewCartClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("NewCartClient: %v", err)
	}

	items, err := client.GetCart(context.Background(), "token-abc")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if gotAuth != "Bearer token-abc" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotPath != "/cart" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].ServerID != "srv-1" || items[0].Kind != domain.CartItemKindProduct || items[0].SKU != "OAK-S" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].TreeID != "tree-1" || items[1].Dedication == nil || items[1].Dedication.Name != "Ada" {
		t.Fatalf("items[1] = %+v", items[1])
	}
}

func TestAddItemSendsVariantReferenceForProducts(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cart/items" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"item":{"id":"srv-9","type":"product","product_variant_id":"OAK-S","quantity":2,"unit_price":4500}}`)
	}))
	defer server.Close()

	client, _ := NewCartClient(server.URL, server.Client())
	item, err := client.AddItem(context.Background(), "tok", domain.CartItem{
		Kind:     domain.CartItemKindProduct,
		SKU:      "OAK-S",
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ServerID != "srv-9" {
		t.Fatalf("ServerID = %q", item.ServerID)
	}
	if gotBody["type"] != "product" || gotBody["product_variant_id"] != "OAK-S" {
		t.Fatalf("request body = %v", gotBody)
	}
	if _, present := gotBody["tree_id"]; present {
		t.Fatalf("product add carried tree fields: %v", gotBody)
	}
}

func TestAddItemSendsTreeReferenceAndDedication(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"item":{"id":"srv-2","type":"adopt","tree_id":"tree-1","plan_id":"annual","quantity":1}}`)
	}))
	defer server.Close()

	client, _ := NewCartClient(server.URL, server.Client())
	_, err := client.AddItem(context.Background(), "tok", domain.CartItem{
		Kind:       domain.CartItemKindAdopt,
		TreeID:     "tree-1",
		PlanID:     "annual",
		Quantity:   1,
		Dedication: &domain.Dedication{Name: "Ada"},
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if gotBody["tree_id"] != "tree-1" || gotBody["plan_id"] != "annual" {
		t.Fatalf("request body = %v", gotBody)
	}
	ded, ok := gotBody["dedication"].(map[string]any)
	if !ok || ded["name"] != "Ada" {
		t.Fatalf("dedication payload = %v", gotBody["dedication"])
	}
}

func TestAddItemRejectsInvalidItemsClientSide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid item reached the backend")
	}))
	defer server.Close()

	client, _ := NewCartClient(server.URL, server.Client())
	_, err := client.AddItem(context.Background(), "tok", domain.CartItem{Kind: "mystery", Quantity: 1})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateItemSendsExplicitNullToClearDedication(t *testing.T) {
	var rawBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/cart/items/srv-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		rawBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"item":{"id":"srv-1","type":"sponsor","tree_id":"tree-1","plan_id":"annual","quantity":1}}`)
	}))
	defer server.Close()

	client, _ := NewCartClient(server.URL, server.Client())
	_, err := client.UpdateItem(context.Background(), "tok", "srv-1", services.ServerCartItemPatch{DedicationSet: true})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &body); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	raw, present := body["dedication"]
	if !present {
		t.Fatalf("dedication key absent from patch body: %s", rawBody)
	}
	if string(raw) != "null" {
		t.Fatalf("dedication = %s, want explicit null", raw)
	}
}

func TestUpdateItemRequiresEditableFields(t *testing.T) {
	client, _ := NewCartClient("http://backend.invalid", nil)
	_, err := client.UpdateItem(context.Background(), "tok", "srv-1", services.ServerCartItemPatch{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRemoveItemAcceptsNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/cart/items/srv-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := NewCartClient(server.URL, server.Client())
	if err := client.RemoveItem(context.Background(), "tok", "srv-1"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
}

func TestClearMapsStatusCodesToSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnprocessableEntity, ErrInvalidInput},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, `{"error":"some_code","message":"backend said no"}`)
		}))

		client, _ := NewCartClient(server.URL, server.Client())
		err := client.Clear(context.Background(), "tok")
		server.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client, _ := NewCartClient(server.URL, nil)
	_, err := client.GetCart(context.Background(), "tok")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestNewCartClientRequiresBaseURL(t *testing.T) {
	if _, err := NewCartClient("   ", nil); err == nil {
		t.Fatal("expected error for blank base URL")
	}
}

func TestRequestsKeepBaseURLPathPrefix(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items":[]}`)
	}))
	defer server.Close()

	client, err := NewCartClient(server.URL+"/api", server.Client())
	if err != nil {
		t.Fatalf("NewCartClient: %v", err)
	}

	if _, err := client.GetCart(context.Background(), "token-abc"); err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if gotPath != "/api/cart" {
		t.Fatalf("path = %q, want the base prefix preserved", gotPath)
	}
}
