package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

type Cart struct {
	Items []CartItem `json:"items"`
}

func (c Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }

// CartStore persists the shopper's cart between runs.
type CartStore interface {
	Load(ctx context.Context) (Cart, error)
	Save(ctx context.Context, c Cart) error
	Clear(ctx context.Context) error
}

type MemoryCartStore struct {
	mu   sync.Mutex
	cart Cart
}

func NewMemoryCartStore(c Cart) *MemoryCartStore { return &MemoryCartStore{cart: c} }

func (m *MemoryCartStore) Load(context.Context) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Cart{Items: append([]CartItem(nil), m.cart.Items...)}, nil
}

func (m *MemoryCartStore) Save(_ context.Context, c Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = Cart{Items: append([]CartItem(nil), c.Items...)}
	return nil
}

func (m *MemoryCartStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = Cart{}
	return nil
}

// FileCartStore keeps the cart as a JSON file. A missing file is an empty cart.
type FileCartStore struct {
	Path string
	mu   sync.Mutex
}

func (f *FileCartStore) Load(context.Context) (Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Cart{}, nil
	}
	if err != nil {
		return Cart{}, err
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return Cart{}, fmt.Errorf("read cart %s: %w", f.Path, err)
	}
	return c, nil
}

func (f *FileCartStore) Save(_ context.Context, c Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".cart-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

func (f *FileCartStore) Clear(ctx context.Context) error {
	return f.Save(ctx, Cart{Items: []CartItem{}})
}
