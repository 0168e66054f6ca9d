package checkout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/storefront/internal/order"
	"github.com/MikeMC777/storefront/internal/payment"
)

// serviceAPI drives an in-process order service the way the HTTP handlers do.
type serviceAPI struct {
	svc       *order.Service
	who       order.Requester
	payErr    error
	createErr error
	creates   int
}

func (a *serviceAPI) Create(ctx context.Context, req order.CreateOrderRequest, idemKey string) (*order.OrderResponse, error) {
	a.creates++
	if a.createErr != nil {
		return nil, a.createErr
	}
	in, err := req.Input(a.who.UserID, idemKey)
	if err != nil {
		return nil, err
	}
	o, _, err := a.svc.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	res := order.ToResponse(o)
	return &res, nil
}

func (a *serviceAPI) MarkPaid(ctx context.Context, id string, req order.PayRequest) (*order.OrderResponse, error) {
	if a.payErr != nil {
		return nil, a.payErr
	}
	in, err := req.Input(time.Now())
	if err != nil {
		return nil, err
	}
	o, err := a.svc.MarkPaid(ctx, id, a.who, in)
	if err != nil {
		return nil, err
	}
	res := order.ToResponse(o)
	return &res, nil
}

type declining struct{}

func (declining) CaptureCard(context.Context, decimal.Decimal, string, string) (order.PaymentInput, error) {
	return order.PaymentInput{}, payment.ErrDeclined
}

var testShipping = order.Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

func newTestCheckout(t *testing.T, capturer CardCapturer) (*Orchestrator, *serviceAPI, *order.Service, *MemoryCartStore) {
	t.Helper()
	repo, err := order.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := order.NewService(repo)
	api := &serviceAPI{svc: svc, who: order.Requester{UserID: "u-1"}}
	cart := NewMemoryCartStore(testCart())
	if capturer == nil {
		capturer = payment.NewSimulated(0, 0)
	}
	o := NewOrchestrator(api, &Session{UserID: "u-1", Cart: cart}, capturer)
	o.now = func() time.Time { return octNow }
	return o, api, svc, cart
}

func TestPayByCardEndToEnd(t *testing.T) {
	ctx := context.Background()
	co, _, svc, cart := newTestCheckout(t, nil)

	conf, err := co.PayByCard(ctx, testShipping, validCard())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, co.State())
	assert.True(t, conf.TotalPrice.Equal(decimal.RequireFromString("109.98")))
	assert.Equal(t, order.MethodCreditCard, conf.PaymentMethod)
	assert.Equal(t, "1111", conf.CardLast4)
	assert.Equal(t, "/orders/"+conf.OrderID, conf.OrderPath())

	stored, err := svc.GetByID(ctx, conf.OrderID, order.Requester{UserID: "u-1"})
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
	assert.Equal(t, order.StatusPaid, stored.Status())
	require.NotNil(t, stored.Payment)
	assert.Equal(t, conf.TransactionID, stored.Payment.Details().TransactionID)
	assert.Equal(t, "card-payment@shop.com", stored.Payment.Details().PayerEmail)
	assert.Nil(t, stored.Intent)

	left, err := cart.Load(ctx)
	require.NoError(t, err)
	assert.True(t, left.Empty())

	_, err = co.PayByCard(ctx, testShipping, validCard())
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestPayByCardValidationKeepsEditing(t *testing.T) {
	ctx := context.Background()
	co, api, _, _ := newTestCheckout(t, nil)

	card := validCard()
	card.Expiry = "09/26"
	_, err := co.PayByCard(ctx, testShipping, card)
	require.Error(t, err)
	assert.True(t, IsFailure(err, KindValidation))
	assert.Equal(t, "Card has expired", err.Error())
	assert.Equal(t, StateEditing, co.State())
	assert.Zero(t, api.creates)

	_, err = co.PayByCard(ctx, order.Address{Street: "1 Main St"}, validCard())
	assert.Equal(t, "Please fill in all shipping address fields", err.Error())
	assert.Equal(t, StateEditing, co.State())
}

func TestPayByCardEmptyCart(t *testing.T) {
	co, _, _, cart := newTestCheckout(t, nil)
	require.NoError(t, cart.Clear(context.Background()))

	_, err := co.PayByCard(context.Background(), testShipping, validCard())
	assert.ErrorIs(t, err, ErrCartEmpty)
	assert.True(t, IsFailure(err, KindValidation))
}

func TestPayByCardDeclined(t *testing.T) {
	co, api, _, cart := newTestCheckout(t, declining{})

	_, err := co.PayByCard(context.Background(), testShipping, validCard())
	require.Error(t, err)
	assert.True(t, IsFailure(err, KindCapture))
	assert.ErrorIs(t, err, payment.ErrDeclined)
	assert.Equal(t, "Payment failed. Please try again.", err.Error())
	assert.Equal(t, StateFailed, co.State())
	assert.Zero(t, api.creates)

	c, _ := cart.Load(context.Background())
	assert.False(t, c.Empty())

	co.Reset()
	assert.Equal(t, StateEditing, co.State())
	assert.Nil(t, co.LastFailure())
}

func TestPayByCardCreateRejected(t *testing.T) {
	co, api, _, _ := newTestCheckout(t, nil)
	api.createErr = &APIError{Status: 400, Message: "total mismatch"}

	_, err := co.PayByCard(context.Background(), testShipping, validCard())
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindOrderCreation, f.Kind)
	assert.Equal(t, "Payment failed. Please try again.", f.Message)
	assert.NotEmpty(t, f.TransactionID)
	assert.Empty(t, f.OrderID)
}

func TestApprovePayPal(t *testing.T) {
	ctx := context.Background()
	co, _, svc, _ := newTestCheckout(t, nil)

	conf, err := co.ApprovePayPal(ctx, testShipping, PayPalApproval{OrderID: "5O190127TN364715T", PayerEmail: "buyer@example.com", PayerID: "QYR5Z8XDVJNXQ"})
	require.NoError(t, err)
	assert.Equal(t, order.MethodPayPal, conf.PaymentMethod)

	stored, err := svc.GetByID(ctx, conf.OrderID, order.System)
	require.NoError(t, err)
	pp, ok := stored.Payment.(order.PayPalPayment)
	require.True(t, ok)
	assert.Equal(t, "QYR5Z8XDVJNXQ", pp.PayerID)
	assert.Equal(t, "buyer@example.com", pp.PayerEmail)
}

func TestApprovePayPalRecordingFails(t *testing.T) {
	ctx := context.Background()
	co, api, svc, cart := newTestCheckout(t, nil)
	api.payErr = &APIError{Status: 500, Message: "database unavailable"}

	_, err := co.ApprovePayPal(ctx, testShipping, PayPalApproval{OrderID: "PP-1", PayerEmail: "buyer@example.com"})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindPaymentRecording, f.Kind)
	require.NotEmpty(t, f.OrderID)
	assert.Contains(t, f.Message, f.OrderID)
	assert.NotEqual(t, "PayPal payment failed. Please try again.", f.Message)
	assert.Equal(t, StateFailed, co.State())

	stored, err := svc.GetByID(ctx, f.OrderID, order.System)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPendingPayment, stored.Status())
	require.NotNil(t, stored.Intent)
	assert.Equal(t, "PP-1", stored.Intent.TransactionID)

	c, _ := cart.Load(ctx)
	assert.False(t, c.Empty())

	// Retrying the same approval reuses the order instead of creating another.
	api.payErr = nil
	co.Reset()
	conf, err := co.ApprovePayPal(ctx, testShipping, PayPalApproval{OrderID: "PP-1", PayerEmail: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, f.OrderID, conf.OrderID)
}

func TestApprovePayPalWithoutTransaction(t *testing.T) {
	co, _, _, _ := newTestCheckout(t, nil)
	_, err := co.ApprovePayPal(context.Background(), testShipping, PayPalApproval{})
	assert.True(t, IsFailure(err, KindValidation))
	assert.Equal(t, StateEditing, co.State())
}
