package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAddress() Address {
	return Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
}

func testItems() []Item {
	return []Item{
		{ProductID: "p-1", Name: "Mouse", Quantity: 2, UnitPrice: dec("54.99")},
	}
}

func newTestOrder(t *testing.T, method PaymentMethod) *Order {
	t.Helper()
	o, err := New("u-1", testItems(), testAddress(), method, dec("109.98"), testNow)
	require.NoError(t, err)
	return o
}

func cardInput(txn string) PaymentInput {
	return PaymentInput{
		Capture:   Capture{TransactionID: txn, Status: StatusCompleted, ConfirmedAt: testNow, PayerEmail: "a@b.c"},
		CardLast4: "1111",
	}
}

func TestNewValidatesInput(t *testing.T) {
	cases := []struct {
		name  string
		items []Item
		addr  Address
		meth  PaymentMethod
		total string
		field string
	}{
		{"no items", nil, testAddress(), MethodCreditCard, "0", "items"},
		{"zero quantity", []Item{{ProductID: "p", Quantity: 0, UnitPrice: dec("1")}}, testAddress(), MethodCreditCard, "0", "items[0].quantity"},
		{"negative price", []Item{{ProductID: "p", Quantity: 1, UnitPrice: dec("-1")}}, testAddress(), MethodCreditCard, "-1", "items[0].unit_price"},
		{"blank city", testItems(), Address{Street: "x", City: "  ", PostalCode: "1", Country: "US"}, MethodCreditCard, "109.98", "shipping_address.city"},
		{"bad method", testItems(), testAddress(), PaymentMethod("Cash"), "109.98", "payment_method"},
		{"total off by a cent", testItems(), testAddress(), MethodCreditCard, "109.97", "total_price"},
		{"sub-cent unit price", []Item{{ProductID: "p", Quantity: 3, UnitPrice: dec("0.335")}}, testAddress(), MethodCreditCard, "1.005", "items[0].unit_price"},
		{"sub-cent total", []Item{{ProductID: "p", Quantity: 1, UnitPrice: dec("1.00")}}, testAddress(), MethodCreditCard, "1.000001", "total_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("u-1", tc.items, tc.addr, tc.meth, dec(tc.total), testNow)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestNewOrderStartsUnpaid(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	assert.Equal(t, StatusUnpaid, o.Status())
	assert.False(t, o.IsPaid)
	assert.Nil(t, o.PaidAt)
	assert.True(t, o.TotalPrice.Equal(dec("109.98")))
	assert.Equal(t, 1, o.Version)
	assert.NotEmpty(t, o.ID)
}

func TestMarkPaidSameTransactionIsNoop(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	res, err := NewPaymentResult(o.PaymentMethod, cardInput("CARD_1"))
	require.NoError(t, err)

	changed, err := o.MarkPaid(res, testNow)
	require.NoError(t, err)
	require.True(t, changed)
	paidAt := *o.PaidAt
	version := o.Version

	changed, err = o.MarkPaid(res, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, paidAt, *o.PaidAt)
	assert.Equal(t, version, o.Version)
}

func TestMarkPaidDifferentTransactionRejected(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	first, _ := NewPaymentResult(o.PaymentMethod, cardInput("CARD_1"))
	second, _ := NewPaymentResult(o.PaymentMethod, cardInput("CARD_2"))
	_, err := o.MarkPaid(first, testNow)
	require.NoError(t, err)

	_, err = o.MarkPaid(second, testNow)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, "CARD_1", o.Payment.Details().TransactionID)
}

func TestMarkPaidRejectsWrongVariant(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	pp := PayPalPayment{Capture: Capture{TransactionID: "PP-1", Status: StatusCompleted}}
	_, err := o.MarkPaid(pp, testNow)
	assert.True(t, IsValidation(err))
	assert.False(t, o.IsPaid)
}

func TestMarkDeliveredRequiresPaid(t *testing.T) {
	o := newTestOrder(t, MethodPayPal)
	err := o.MarkDelivered(testNow)
	assert.ErrorIs(t, err, ErrInvalidState)

	res, _ := NewPaymentResult(o.PaymentMethod, PaymentInput{Capture: Capture{TransactionID: "PP-1"}})
	_, err = o.MarkPaid(res, testNow)
	require.NoError(t, err)
	require.NoError(t, o.MarkDelivered(testNow))
	assert.Equal(t, StatusDelivered, o.Status())

	err = o.MarkDelivered(testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPendingPaymentLifecycle(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	require.NoError(t, o.BeginPayment("CARD_9", testNow))
	assert.Equal(t, StatusPendingPayment, o.Status())
	assert.ErrorIs(t, o.BeginPayment("CARD_10", testNow), ErrInvalidState)

	require.NoError(t, o.ReleasePayment(testNow))
	assert.Equal(t, StatusUnpaid, o.Status())
	assert.True(t, errors.Is(o.ReleasePayment(testNow), ErrInvalidState))
}

func TestMarkPaidPendingOrderAcceptsOnlyItsTransaction(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	require.NoError(t, o.BeginPayment("CARD_9", testNow))

	other, _ := NewPaymentResult(o.PaymentMethod, cardInput("CARD_10"))
	_, err := o.MarkPaid(other, testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, o.IsPaid)
	require.NotNil(t, o.Intent)
	assert.Equal(t, "CARD_9", o.Intent.TransactionID)

	own, _ := NewPaymentResult(o.PaymentMethod, cardInput("CARD_9"))
	changed, err := o.MarkPaid(own, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, o.Intent)
}

func TestTrackingStages(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	assert.Equal(t, "Processing", o.Tracking().Stage)

	res, _ := NewPaymentResult(o.PaymentMethod, cardInput("CARD_1"))
	_, _ = o.MarkPaid(res, testNow)
	assert.Equal(t, "In Transit", o.Tracking().Stage)

	_ = o.MarkDelivered(testNow)
	assert.Equal(t, "Delivered", o.Tracking().Stage)
}

func TestNewPaymentResultRejectsIncompleteStatus(t *testing.T) {
	in := cardInput("CARD_1")
	in.Status = "DECLINED"
	_, err := NewPaymentResult(MethodCreditCard, in)
	assert.True(t, IsValidation(err))

	_, err = NewPaymentResult(MethodCreditCard, PaymentInput{})
	assert.True(t, IsValidation(err))
}

func TestPaymentRecordRoundTripKeepsVariant(t *testing.T) {
	res, err := NewPaymentResult(MethodPayPal, PaymentInput{Capture: Capture{TransactionID: "PP-1", ConfirmedAt: testNow}, PayerID: "PAYER"})
	require.NoError(t, err)

	back, err := RecordOf(res).Result()
	require.NoError(t, err)
	pp, ok := back.(PayPalPayment)
	require.True(t, ok)
	assert.Equal(t, "PAYER", pp.PayerID)
	assert.Equal(t, "PP-1", pp.TransactionID)
}
