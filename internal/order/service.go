package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/storefront/internal/metrics"
)

// Requester is the authenticated caller of a service operation.
type Requester struct {
	UserID string
	Admin  bool
}

// System is used by background jobs that act on any order.
var System = Requester{UserID: "system", Admin: true}

type ProductSnapshot struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Image string
	Stock int
}

type Catalog interface {
	Snapshot(ctx context.Context, productID string) (*ProductSnapshot, error)
}

// StockReserver decrements stock atomically. Reserve returns ErrOutOfStock
// when fewer than qty units are available.
type StockReserver interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
}

type Directory interface {
	ValidateUser(ctx context.Context, id string) (bool, error)
}

type CreateInput struct {
	UserID           string
	Items            []Item
	ShippingAddress  Address
	PaymentMethod    PaymentMethod
	TotalPrice       decimal.Decimal
	PaymentReference string
	IdempotencyKey   string
}

type Service struct {
	repo    Repository
	catalog Catalog
	stock   StockReserver
	users   Directory
	events  Publisher
	now     func() time.Time
}

type Option func(*Service)

func WithCatalog(c Catalog) Option { return func(s *Service) { s.catalog = c } }
func WithStock(r StockReserver) Option { return func(s *Service) { s.stock = r } }
func WithDirectory(d Directory) Option { return func(s *Service) { s.users = d } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, events: NopPublisher{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a new order. The second return value is true when an
// existing order was returned for a repeated idempotency key.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, bool, error) {
	if in.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	if s.users != nil {
		ok, err := s.users.ValidateUser(ctx, in.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("validate user: %w", err)
		}
		if !ok {
			return nil, false, &ValidationError{Field: "user_id", Msg: "unknown user"}
		}
	}

	items, err := s.snapshot(ctx, in.Items)
	if err != nil {
		return nil, false, err
	}
	o, err := New(in.UserID, items, in.ShippingAddress, in.PaymentMethod, in.TotalPrice, s.now())
	if err != nil {
		return nil, false, err
	}
	o.IdempotencyKey = in.IdempotencyKey
	if in.PaymentReference != "" {
		if err := o.BeginPayment(in.PaymentReference, s.now()); err != nil {
			return nil, false, err
		}
	}

	release, err := s.reserve(ctx, o.Items)
	if err != nil {
		return nil, false, err
	}
	if err := s.repo.Create(ctx, o); err != nil {
		release()
		if errors.Is(err, ErrDuplicateKey) {
			existing, ferr := s.repo.FindByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
			if ferr != nil {
				return nil, false, fmt.Errorf("load replayed order: %w", ferr)
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("store order: %w", err)
	}

	log.Printf("[order] created id=%s user=%s total=%s method=%s status=%s",
		o.ID, o.UserID, o.TotalPrice.StringFixed(2), o.PaymentMethod, o.Status())
	s.emit(ctx, EventCreated, o)
	if o.Intent != nil {
		s.emit(ctx, EventPaymentPending, o)
	}
	return o, false, nil
}

func (s *Service) snapshot(ctx context.Context, in []Item) ([]Item, error) {
	out := make([]Item, len(in))
	copy(out, in)
	if s.catalog == nil {
		return out, nil
	}
	for i, it := range out {
		if strings.TrimSpace(it.ProductID) == "" {
			continue
		}
		p, err := s.catalog.Snapshot(ctx, it.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Msg: "product not found"}
		}
		if err != nil {
			return nil, fmt.Errorf("fetch product %s: %w", it.ProductID, err)
		}
		out[i].Name = p.Name
		out[i].UnitPrice = p.Price
		if p.Image != "" {
			out[i].Image = p.Image
		}
	}
	return out, nil
}

// reserve takes stock for every line and returns a func that gives it back.
func (s *Service) reserve(ctx context.Context, items []Item) (func(), error) {
	if s.stock == nil {
		return func() {}, nil
	}
	var taken []Item
	release := func() {
		bg := context.WithoutCancel(ctx)
		for _, it := range taken {
			if err := s.stock.Release(bg, it.ProductID, it.Quantity); err != nil {
				log.Printf("[order] release stock product=%s qty=%d: %v", it.ProductID, it.Quantity, err)
			}
		}
	}
	for _, it := range items {
		if err := s.stock.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			release()
			if errors.Is(err, ErrOutOfStock) {
				return nil, fmt.Errorf("%w: product %s", ErrOutOfStock, it.ProductID)
			}
			return nil, fmt.Errorf("reserve product %s: %w", it.ProductID, err)
		}
		taken = append(taken, it)
	}
	return release, nil
}

func (s *Service) GetByID(ctx context.Context, id string, r Requester) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.VisibleTo(r) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, r Requester, userID string) ([]Order, error) {
	if !r.Admin && r.UserID != userID {
		return nil, ErrForbidden
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context, r Requester) ([]Order, error) {
	if !r.Admin {
		return nil, ErrForbidden
	}
	return s.repo.ListAll(ctx)
}

func (s *Service) ListPendingPayments(ctx context.Context, startedBefore time.Time) ([]Order, error) {
	return s.repo.ListPendingPayments(ctx, startedBefore)
}

func (s *Service) Tracking(ctx context.Context, id string, r Requester) (Tracking, error) {
	o, err := s.GetByID(ctx, id, r)
	if err != nil {
		return Tracking{}, err
	}
	return o.Tracking(), nil
}

// MarkPaid settles the order with the payment result. Repeating the call with
// the transaction that already paid the order returns the order unchanged.
func (s *Service) MarkPaid(ctx context.Context, id string, r Requester, in PaymentInput) (*Order, error) {
	o, changed, err := s.transition(ctx, id, func(o *Order) (bool, error) {
		if !o.VisibleTo(r) {
			return false, ErrForbidden
		}
		res, err := NewPaymentResult(o.PaymentMethod, in)
		if err != nil {
			return false, err
		}
		return o.MarkPaid(res, s.now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Printf("[order] paid id=%s txn=%s", o.ID, in.TransactionID)
		s.emit(ctx, EventPaid, o)
	}
	return o, nil
}

func (s *Service) MarkDelivered(ctx context.Context, id string, r Requester) (*Order, error) {
	if !r.Admin {
		return nil, ErrForbidden
	}
	o, _, err := s.transition(ctx, id, func(o *Order) (bool, error) {
		return true, o.MarkDelivered(s.now())
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[order] delivered id=%s", o.ID)
	s.emit(ctx, EventDelivered, o)
	return o, nil
}

// ReleasePayment returns a PendingPayment order to Unpaid.
func (s *Service) ReleasePayment(ctx context.Context, id string) (*Order, error) {
	o, _, err := s.transition(ctx, id, func(o *Order) (bool, error) {
		return true, o.ReleasePayment(s.now())
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[order] payment released id=%s", o.ID)
	s.emit(ctx, EventPaymentReleased, o)
	return o, nil
}

const maxTransitionAttempts = 3

// transition loads the order, applies fn and stores the result guarded by
// the version that was read. A concurrent writer causes a reload.
func (s *Service) transition(ctx context.Context, id string, fn func(o *Order) (bool, error)) (*Order, bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		o, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		prev := o.Version
		changed, err := fn(o)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return o, false, nil
		}
		err = s.repo.Update(ctx, o, prev)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("update order: %w", err)
		}
		return o, true, nil
	}
	return nil, false, ErrConflict
}

func (s *Service) emit(ctx context.Context, t EventType, o *Order) {
	metrics.OrderEvents.WithLabelValues(string(t)).Inc()
	if err := s.events.Publish(ctx, NewEvent(t, o, s.now())); err != nil {
		log.Printf("[order] publish %s id=%s: %v", t, o.ID, err)
	}
}
