package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MikeMC777/storefront/internal/order"
)

// OrderAPI is the slice of the order service the checkout needs.
type OrderAPI interface {
	Create(ctx context.Context, req order.CreateOrderRequest, idemKey string) (*order.OrderResponse, error)
	MarkPaid(ctx context.Context, orderID string, req order.PayRequest) (*order.OrderResponse, error)
}

// APIError is a non-2xx answer from the order service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("order service: %d %s", e.Status, e.Message)
}

type HTTPOrderAPI struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
}

func NewHTTPOrderAPI(baseURL, token string) *HTTPOrderAPI {
	return &HTTPOrderAPI{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
	}
}

func (a *HTTPOrderAPI) Create(ctx context.Context, req order.CreateOrderRequest, idemKey string) (*order.OrderResponse, error) {
	h := http.Header{}
	if idemKey != "" {
		h.Set("Idempotency-Key", idemKey)
	}
	var out order.OrderResponse
	if err := a.do(ctx, http.MethodPost, "/orders", h, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPOrderAPI) MarkPaid(ctx context.Context, orderID string, req order.PayRequest) (*order.OrderResponse, error) {
	var out order.OrderResponse
	if err := a.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID)+"/pay", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPOrderAPI) do(ctx context.Context, method, path string, h http.Header, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	for k, v := range h {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	res, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: res.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(res.Body).Decode(out)
}
