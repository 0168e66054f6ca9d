package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProductServer(t *testing.T, products map[string]ProductDTO) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/products/broken":
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		default:
			p, ok := products[path.Base(r.URL.Path)]
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(p)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCatalogSnapshot(t *testing.T) {
	srv := newProductServer(t, map[string]ProductDTO{
		"p-1": {ID: "p-1", Name: "Wireless Mouse", Price: dec("54.99"), Image: "/img/mouse.png", Stock: 3},
	})
	c := NewHTTPCatalog(srv.URL)
	ctx := context.Background()

	p, err := c.Snapshot(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Wireless Mouse", p.Name)
	assert.True(t, p.Price.Equal(dec("54.99")))
	assert.Equal(t, 3, p.Stock)

	_, err = c.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = c.Snapshot(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProductNotFound)
}

func TestCreateSnapshotsCatalogPrices(t *testing.T) {
	srv := newProductServer(t, map[string]ProductDTO{
		"p-1": {ID: "p-1", Name: "Wireless Mouse", Price: dec("54.99")},
	})
	svc, _ := newTestService(t, WithCatalog(NewHTTPCatalog(srv.URL)))

	in := CreateInput{
		UserID:          "u-1",
		Items:           []Item{{ProductID: "p-1", Name: "stale name", Quantity: 2, UnitPrice: dec("1.00")}},
		ShippingAddress: testAddress(),
		PaymentMethod:   MethodCreditCard,
		TotalPrice:      dec("109.98"),
	}
	o, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Wireless Mouse", o.Items[0].Name)
	assert.True(t, o.TotalPrice.Equal(dec("109.98")))

	in.Items[0].ProductID = "gone"
	_, _, err = svc.Create(context.Background(), in)
	assert.True(t, IsValidation(err))
}
