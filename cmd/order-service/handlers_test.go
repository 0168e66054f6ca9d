package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/storefront/internal/auth"
	"github.com/MikeMC777/storefront/internal/checkout"
	"github.com/MikeMC777/storefront/internal/order"
	"github.com/MikeMC777/storefront/internal/payment"
)

//
// ---------- HELPERS ----------
//

type testEnv struct {
	router *gin.Engine
	svc    *order.Service
	tokens *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := order.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	gin.SetMode(gin.TestMode)
	tokens := auth.NewIssuer("test-secret", time.Hour)
	svc := order.NewService(repo)
	return &testEnv{router: newRouter(svc, tokens), svc: svc, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := e.tokens.Issue(userID, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) order.OrderResponse {
	t.Helper()
	var out order.OrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v body=%s", err, w.Body.String())
	}
	return out
}

func orderBody(method string, reference string) order.CreateOrderRequest {
	return order.CreateOrderRequest{
		Items: []order.CreateOrderItem{
			{ProductID: uuid.NewString(), Name: "Wireless Mouse", Quantity: 2, UnitPrice: decimal.RequireFromString("29.99")},
			{ProductID: uuid.NewString(), Name: "Mechanical Keyboard", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00")},
		},
		ShippingAddress:  order.Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:    method,
		TotalPrice:       decimal.RequireFromString("109.98"),
		PaymentReference: reference,
	}
}

func payBody(txn string) order.PayRequest {
	return order.PayRequest{ID: txn, Status: "COMPLETED", UpdateTime: "2026-10-15T12:00:00Z", EmailAddress: "card-payment@shop.com", CardLast4: "1111"}
}

//
// ---------- TESTS ----------
//

func TestCreateOrder_RequiresToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/orders", "", orderBody("CreditCard", ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%s (want 401)", w.Code, w.Body.String())
	}
}

func TestCreateOrder_HappyPathAndReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tok := env.token(t, "u-1", "user")

	w := env.do(t, http.MethodPost, "/orders", tok, orderBody("CreditCard", "CARD_1"), "Idempotency-Key", "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	first := decodeOrder(t, w)
	if first.UserID != "u-1" || first.Status != order.StatusPendingPayment {
		t.Fatalf("unexpected order: user=%s status=%s", first.UserID, first.Status)
	}
	if !first.TotalPrice.Equal(decimal.RequireFromString("109.98")) {
		t.Fatalf("total=%s", first.TotalPrice)
	}

	w = env.do(t, http.MethodPost, "/orders", tok, orderBody("CreditCard", "CARD_1"), "Idempotency-Key", "k-1")
	if w.Code != http.StatusOK {
		t.Fatalf("replay status=%d body=%s (want 200)", w.Code, w.Body.String())
	}
	if again := decodeOrder(t, w); again.ID != first.ID {
		t.Fatalf("replay created a new order: %s != %s", again.ID, first.ID)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tok := env.token(t, "u-1", "user")

	bad := orderBody("CreditCard", "")
	bad.TotalPrice = decimal.RequireFromString("100.00")
	if w := env.do(t, http.MethodPost, "/orders", tok, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("total mismatch status=%d body=%s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodPost, "/orders", tok, orderBody("Bitcoin", "")); w.Code != http.StatusBadRequest {
		t.Fatalf("method status=%d body=%s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodPost, "/orders", tok, `{"items":`); w.Code != http.StatusBadRequest {
		t.Fatalf("json status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestGetOrder_Access(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	owner := env.token(t, "u-1", "user")

	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", owner, orderBody("PayPal", "")))

	if w := env.do(t, http.MethodGet, "/orders/"+created.ID, owner, nil); w.Code != http.StatusOK {
		t.Fatalf("owner status=%d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/orders/"+created.ID, env.token(t, "u-2", "user"), nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger status=%d (want 403)", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/orders/"+created.ID, env.token(t, "a-1", auth.RoleAdmin), nil); w.Code != http.StatusOK {
		t.Fatalf("admin status=%d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/orders/"+uuid.NewString(), owner, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d (want 404)", w.Code)
	}
}

func TestPayOrder_IdempotentAndConflict(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tok := env.token(t, "u-1", "user")
	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", tok, orderBody("CreditCard", "")))

	w := env.do(t, http.MethodPut, "/orders/"+created.ID+"/pay", tok, payBody("CARD_7"))
	if w.Code != http.StatusOK {
		t.Fatalf("pay status=%d body=%s", w.Code, w.Body.String())
	}
	paid := decodeOrder(t, w)
	if !paid.IsPaid || paid.PaymentResult == nil || paid.PaymentResult.CardLast4 != "1111" {
		t.Fatalf("payment not recorded: %+v", paid)
	}

	w = env.do(t, http.MethodPut, "/orders/"+created.ID+"/pay", tok, payBody("CARD_7"))
	if w.Code != http.StatusOK {
		t.Fatalf("repeat pay status=%d body=%s", w.Code, w.Body.String())
	}
	if again := decodeOrder(t, w); !again.PaidAt.Equal(*paid.PaidAt) {
		t.Fatalf("paid_at moved on repeat: %v -> %v", paid.PaidAt, again.PaidAt)
	}

	w = env.do(t, http.MethodPut, "/orders/"+created.ID+"/pay", tok, payBody("CARD_8"))
	if w.Code != http.StatusConflict {
		t.Fatalf("second txn status=%d (want 409)", w.Code)
	}
}

func TestPayOrder_RejectsIncompletePayment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tok := env.token(t, "u-1", "user")
	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", tok, orderBody("CreditCard", "")))
	body := payBody("CARD_9")
	body.Status = "DECLINED"
	if w := env.do(t, http.MethodPut, "/orders/"+created.ID+"/pay", tok, body); w.Code != http.StatusBadRequest {
		t.Fatalf("declined status=%d (want 400)", w.Code)
	}
}

func TestDeliverOrder_AdminFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	owner := env.token(t, "u-1", "user")
	admin := env.token(t, "a-1", auth.RoleAdmin)
	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", owner, orderBody("CreditCard", "")))

	if w := env.do(t, http.MethodPut, "/orders/"+created.ID+"/deliver", owner, nil); w.Code != http.StatusForbidden {
		t.Fatalf("owner deliver status=%d (want 403)", w.Code)
	}
	if w := env.do(t, http.MethodPut, "/orders/"+created.ID+"/deliver", admin, nil); w.Code != http.StatusConflict {
		t.Fatalf("unpaid deliver status=%d (want 409)", w.Code)
	}

	env.do(t, http.MethodPut, "/orders/"+created.ID+"/pay", owner, payBody("CARD_10"))
	w := env.do(t, http.MethodPut, "/orders/"+created.ID+"/deliver", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deliver status=%d body=%s", w.Code, w.Body.String())
	}
	if d := decodeOrder(t, w); !d.IsDelivered || d.Status != order.StatusDelivered {
		t.Fatalf("not delivered: %+v", d)
	}

	w = env.do(t, http.MethodGet, "/orders/"+created.ID+"/tracking", owner, nil)
	var tr order.Tracking
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil || tr.Stage != "Delivered" {
		t.Fatalf("tracking=%s err=%v", w.Body.String(), err)
	}
}

func TestListOrders(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u1 := env.token(t, "u-1", "user")
	u2 := env.token(t, "u-2", "user")
	env.do(t, http.MethodPost, "/orders", u1, orderBody("PayPal", ""))
	env.do(t, http.MethodPost, "/orders", u1, orderBody("CreditCard", ""))
	env.do(t, http.MethodPost, "/orders", u2, orderBody("PayPal", ""))

	var mine []order.OrderResponse
	w := env.do(t, http.MethodGet, "/orders/myorders", u1, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &mine); err != nil || len(mine) != 2 {
		t.Fatalf("myorders len=%d err=%v body=%s", len(mine), err, w.Body.String())
	}

	if w := env.do(t, http.MethodGet, "/orders", u1, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user list all status=%d (want 403)", w.Code)
	}
	var all []order.OrderResponse
	w = env.do(t, http.MethodGet, "/orders", env.token(t, "a-1", auth.RoleAdmin), nil)
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all) != 3 {
		t.Fatalf("all len=%d err=%v body=%s", len(all), err, w.Body.String())
	}
}

// Card checkout through the real HTTP surface: capture, create, mark paid.
func TestCheckout_CardEndToEnd(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	cart := checkout.NewMemoryCartStore(checkout.Cart{Items: []checkout.CartItem{
		{ProductID: "p-mouse", Name: "Wireless Mouse", Quantity: 2, UnitPrice: decimal.RequireFromString("29.99")},
		{ProductID: "p-keyboard", Name: "Mechanical Keyboard", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00")},
	}})
	api := checkout.NewHTTPOrderAPI(srv.URL, env.token(t, "u-1", "user"))
	co := checkout.NewOrchestrator(api, &checkout.Session{UserID: "u-1", Cart: cart}, payment.NewSimulated(0, 0))

	conf, err := co.PayByCard(context.Background(),
		order.Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		checkout.CardDetails{Number: "4111 1111 1111 1111", Name: "Ada Lovelace", Expiry: "12/99", CVV: "123"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !conf.TotalPrice.Equal(decimal.RequireFromString("109.98")) {
		t.Fatalf("total=%s", conf.TotalPrice)
	}

	o, err := env.svc.GetByID(context.Background(), conf.OrderID, order.System)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if !o.IsPaid || o.Payment.Details().TransactionID != conf.TransactionID {
		t.Fatalf("order not paid with %s: %+v", conf.TransactionID, o)
	}
	if got := fmt.Sprint(o.Status()); got != "paid" {
		t.Fatalf("status=%s", got)
	}
}
