package orderstore

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arbelos/dexkeeper/pkg/engine"
)

const (
	makerHex = "0x1111111111111111111111111111111111111111"
	tokenAIn = "0x00000000000000000000000000000000000000aa"
	tokenOut = "0x00000000000000000000000000000000000000bb"
	poolHex  = "0x0000000000000000000000000000000000000ccc"
)

func orderJSON(id, amount string) map[string]interface{} {
	return map[string]interface{}{
		"id":           id,
		"maker":        makerHex,
		"tokenIn":      tokenAIn,
		"tokenOut":     tokenOut,
		"amountIn":     amount,
		"price":        "12.5",
		"orderType":    "limit",
		"expiry":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"poolAddress":  poolHex,
		"createdAt":    time.Now().UTC().Format(time.RFC3339),
		"status":       "pending",
		"filledAmount": "0",
	}
}

func newTestClient(url string) *Client {
	return NewClient(url, time.Second, zap.NewNop().Sugar())
}

func TestListPendingOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.URL.Query().Get("status") != "pending" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		bad := orderJSON("bad1", "1000")
		bad["maker"] = "not-an-address"
		json.NewEncoder(w).Encode([]interface{}{
			orderJSON("ord1", "1000"),
			bad,
			orderJSON("ord2", "250"),
		})
	}))
	defer srv.Close()

	orders, err := newTestClient(srv.URL).ListPendingOrders(context.Background())
	if err != nil {
		t.Fatalf("ListPendingOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2 (invalid row skipped)", len(orders))
	}

	o := orders[0]
	if o.ID != "ord1" {
		t.Errorf("id = %s, want ord1", o.ID)
	}
	if o.AmountIn.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("amountIn = %s, want 1000", o.AmountIn)
	}
	if o.Price.String() != "12.5" {
		t.Errorf("price = %s, want 12.5", o.Price)
	}
	if o.Status != engine.OrderPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
	if got := o.Maker.Hex(); got != "0x1111111111111111111111111111111111111111" {
		t.Errorf("maker = %s", got)
	}
}

func TestListPendingOrders_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).ListPendingOrders(context.Background()); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestPatchOrderStatus(t *testing.T) {
	type recorded struct {
		method string
		path   string
		body   map[string]string
	}
	var got recorded

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).PatchOrderStatus(context.Background(), "ord1", engine.StatusUpdate{
		Status:        engine.OrderFilled,
		FilledAmount:  big.NewInt(500),
		SettlementRef: "0xdeadbeef",
	})
	if err != nil {
		t.Fatalf("PatchOrderStatus: %v", err)
	}

	if got.method != http.MethodPatch || got.path != "/orders/ord1" {
		t.Errorf("request = %s %s, want PATCH /orders/ord1", got.method, got.path)
	}
	want := map[string]string{
		"status":        "filled",
		"filledAmount":  "500",
		"settlementRef": "0xdeadbeef",
	}
	for k, v := range want {
		if got.body[k] != v {
			t.Errorf("body[%s] = %q, want %q", k, got.body[k], v)
		}
	}
	if _, ok := got.body["failureReason"]; ok {
		t.Error("empty failureReason should be omitted")
	}
}

func TestPatchOrderStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "conflict", http.StatusConflict)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).PatchOrderStatus(context.Background(), "ord1", engine.StatusUpdate{
		Status: engine.OrderPending,
	})
	if err == nil {
		t.Fatal("expected error on 409 response")
	}
}
