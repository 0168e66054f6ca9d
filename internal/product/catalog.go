package product

import (
	"context"
	"errors"

	"github.com/MikeMC777/storefront/internal/order"
)

// Catalog exposes a Repository to the order service.
type Catalog struct{ repo Repository }

func NewCatalog(repo Repository) *Catalog { return &Catalog{repo: repo} }

func (c *Catalog) Snapshot(ctx context.Context, id string) (*order.ProductSnapshot, error) {
	p, err := c.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, order.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order.ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image, Stock: p.Stock}, nil
}

func (c *Catalog) Reserve(ctx context.Context, id string, qty int) error {
	err := c.repo.Reserve(ctx, id, qty)
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return order.ErrOutOfStock
	case errors.Is(err, ErrNotFound):
		return order.ErrProductNotFound
	}
	return err
}

func (c *Catalog) Release(ctx context.Context, id string, qty int) error {
	return c.repo.Release(ctx, id, qty)
}
