package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodPayPal     PaymentMethod = "PayPal"
	MethodCreditCard PaymentMethod = "CreditCard"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.TrimSpace(s)) {
	case MethodPayPal:
		return MethodPayPal, nil
	case MethodCreditCard:
		return MethodCreditCard, nil
	}
	return "", &ValidationError{Field: "payment_method", Msg: fmt.Sprintf("unsupported payment method %q", s)}
}

// Status is derived from the payment and delivery flags, never stored.
type Status string

const (
	StatusUnpaid         Status = "unpaid"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusDelivered      Status = "delivered"
)

type Address struct {
	Street     string `json:"street"      bson:"street"`
	City       string `json:"city"        bson:"city"`
	PostalCode string `json:"postal_code" bson:"postalCode"`
	Country    string `json:"country"     bson:"country"`
}

// Item is a line snapshot taken when the order is placed.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

func (it Item) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// PaymentIntent records a provider transaction that was issued before the
// order was confirmed as paid.
type PaymentIntent struct {
	Method        PaymentMethod `json:"method"         bson:"method"`
	TransactionID string        `json:"transaction_id" bson:"transactionId"`
	StartedAt     time.Time     `json:"started_at"     bson:"startedAt"`
}

type Order struct {
	ID              string
	UserID          string
	Items           []Item
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Payment         PaymentResult
	Intent          *PaymentIntent
	TotalPrice      decimal.Decimal
	IsPaid          bool
	PaidAt          *time.Time
	IsDelivered     bool
	DeliveredAt     *time.Time
	IdempotencyKey  string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New validates the input and builds an unpaid order. total must equal the
// sum of the line subtotals exactly.
func New(userID string, items []Item, addr Address, method PaymentMethod, total decimal.Decimal, now time.Time) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Msg: "user is required"}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Msg: "at least one item is required"}
	}
	sum := decimal.Zero
	lines := make([]Item, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Msg: "product is required"}
		}
		if it.Quantity < 1 {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Msg: "quantity must be at least 1"}
		}
		if it.UnitPrice.IsNegative() {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].unit_price", i), Msg: "unit price must not be negative"}
		}
		if !WholeCents(it.UnitPrice) {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].unit_price", i), Msg: "unit price must be in whole cents"}
		}
		lines[i] = it
		sum = sum.Add(it.Subtotal())
	}
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}
	if total.IsNegative() {
		return nil, &ValidationError{Field: "total_price", Msg: "total must not be negative"}
	}
	if !WholeCents(total) {
		return nil, &ValidationError{Field: "total_price", Msg: "total must be in whole cents"}
	}
	if !total.Equal(sum) {
		return nil, &ValidationError{Field: "total_price", Msg: fmt.Sprintf("total %s does not match items sum %s", total.StringFixed(2), sum.StringFixed(2))}
	}

	now = now.UTC()
	return &Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           lines,
		ShippingAddress: addr,
		PaymentMethod:   method,
		TotalPrice:      sum,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// WholeCents reports whether d has no digits below the cent. Stores keep two
// decimal places, so anything finer would be rounded on write.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func ValidateAddress(a Address) error {
	fields := []struct{ name, v string }{
		{"shipping_address.street", a.Street},
		{"shipping_address.city", a.City},
		{"shipping_address.postal_code", a.PostalCode},
		{"shipping_address.country", a.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.v) == "" {
			return &ValidationError{Field: f.name, Msg: "is required"}
		}
	}
	return nil
}

func (o *Order) Status() Status {
	switch {
	case o.IsDelivered:
		return StatusDelivered
	case o.IsPaid:
		return StatusPaid
	case o.Intent != nil:
		return StatusPendingPayment
	}
	return StatusUnpaid
}

func (o *Order) VisibleTo(r Requester) bool {
	return r.Admin || (r.UserID != "" && r.UserID == o.UserID)
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now.UTC()
	o.Version++
}

// BeginPayment moves an unpaid order to PendingPayment.
func (o *Order) BeginPayment(txnID string, now time.Time) error {
	if o.IsPaid || o.Intent != nil {
		return fmt.Errorf("%w: payment already started", ErrInvalidState)
	}
	if strings.TrimSpace(txnID) == "" {
		return &ValidationError{Field: "payment_reference", Msg: "transaction id is required"}
	}
	o.Intent = &PaymentIntent{Method: o.PaymentMethod, TransactionID: txnID, StartedAt: now.UTC()}
	o.touch(now)
	return nil
}

// MarkPaid applies a settled payment. Replaying the transaction that already
// paid the order reports changed=false; any other payment on a paid order is
// ErrAlreadyPaid. A pending order only accepts its own transaction.
func (o *Order) MarkPaid(res PaymentResult, now time.Time) (changed bool, err error) {
	if res == nil {
		return false, &ValidationError{Field: "payment_result", Msg: "is required"}
	}
	if o.IsPaid {
		if o.Payment != nil && o.Payment.Details().TransactionID == res.Details().TransactionID {
			return false, nil
		}
		return false, ErrAlreadyPaid
	}
	if o.Intent != nil && o.Intent.TransactionID != res.Details().TransactionID {
		return false, fmt.Errorf("%w: payment %s does not match pending transaction %s",
			ErrInvalidState, res.Details().TransactionID, o.Intent.TransactionID)
	}
	if res.Method() != o.PaymentMethod {
		return false, &ValidationError{Field: "payment_result", Msg: fmt.Sprintf("%s payment cannot settle a %s order", res.Method(), o.PaymentMethod)}
	}
	at := now.UTC()
	o.IsPaid = true
	o.PaidAt = &at
	o.Payment = res
	o.Intent = nil
	o.touch(now)
	return true, nil
}

func (o *Order) MarkDelivered(now time.Time) error {
	if o.IsDelivered {
		return fmt.Errorf("%w: order already delivered", ErrInvalidState)
	}
	if !o.IsPaid {
		return fmt.Errorf("%w: order is not paid", ErrInvalidState)
	}
	at := now.UTC()
	o.IsDelivered = true
	o.DeliveredAt = &at
	o.touch(now)
	return nil
}

// ReleasePayment drops a pending intent that the provider never settled.
func (o *Order) ReleasePayment(now time.Time) error {
	if o.IsPaid || o.Intent == nil {
		return fmt.Errorf("%w: no pending payment", ErrInvalidState)
	}
	o.Intent = nil
	o.touch(now)
	return nil
}

type Tracking struct {
	OrderID     string `json:"order_id"`
	Stage       string `json:"stage"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

func (o *Order) Tracking() Tracking {
	t := Tracking{OrderID: o.ID, Status: o.Status()}
	switch {
	case o.IsDelivered:
		t.Stage, t.Description = "Delivered", "Your order has been delivered successfully"
	case o.IsPaid:
		t.Stage, t.Description = "In Transit", "Your order is on its way"
	default:
		t.Stage, t.Description = "Processing", "Your order is being prepared"
	}
	return t
}
