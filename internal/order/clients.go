package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type ProductDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
}

// HTTPCatalog reads product snapshots from the product service.
type HTTPCatalog struct {
	HTTP    *http.Client
	BaseURL string
}

func NewHTTPCatalog(baseURL string) *HTTPCatalog {
	return &HTTPCatalog{HTTP: &http.Client{Timeout: 5 * time.Second}, BaseURL: baseURL}
}

func (c *HTTPCatalog) FetchProduct(ctx context.Context, id string) (*ProductDTO, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/products/%s", c.BaseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrProductNotFound
	default:
		return nil, fmt.Errorf("product service: %s", res.Status)
	}
	var p ProductDTO
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPCatalog) Snapshot(ctx context.Context, id string) (*ProductSnapshot, error) {
	p, err := c.FetchProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image, Stock: p.Stock}, nil
}
