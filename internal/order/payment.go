package order

import (
	"fmt"
	"strings"
	"time"
)

// Capture is what a payment provider reports for a settled transaction.
type Capture struct {
	TransactionID string
	Status        string
	ConfirmedAt   time.Time
	PayerEmail    string
}

// PaymentResult is either a CardPayment or a PayPalPayment.
type PaymentResult interface {
	Method() PaymentMethod
	Details() Capture
	isPaymentResult()
}

type CardPayment struct {
	Capture
	CardLast4 string
}

func (CardPayment) Method() PaymentMethod { return MethodCreditCard }
func (p CardPayment) Details() Capture    { return p.Capture }
func (CardPayment) isPaymentResult()      {}

type PayPalPayment struct {
	Capture
	PayerID string
}

func (PayPalPayment) Method() PaymentMethod { return MethodPayPal }
func (p PayPalPayment) Details() Capture    { return p.Capture }
func (PayPalPayment) isPaymentResult()      {}

// PaymentInput is the provider-agnostic payload accepted when settling an
// order. The variant is chosen from the order's payment method.
type PaymentInput struct {
	Capture
	CardLast4 string
	PayerID   string
}

const StatusCompleted = "COMPLETED"

func NewPaymentResult(method PaymentMethod, in PaymentInput) (PaymentResult, error) {
	if strings.TrimSpace(in.TransactionID) == "" {
		return nil, &ValidationError{Field: "payment_result.id", Msg: "transaction id is required"}
	}
	if in.Status == "" {
		in.Status = StatusCompleted
	}
	if !strings.EqualFold(in.Status, StatusCompleted) {
		return nil, &ValidationError{Field: "payment_result.status", Msg: fmt.Sprintf("status %q is not a completed payment", in.Status)}
	}
	in.Status = StatusCompleted
	in.ConfirmedAt = in.ConfirmedAt.UTC()
	switch method {
	case MethodCreditCard:
		if in.CardLast4 != "" && len(in.CardLast4) != 4 {
			return nil, &ValidationError{Field: "payment_result.card_last4", Msg: "must be 4 digits"}
		}
		return CardPayment{Capture: in.Capture, CardLast4: in.CardLast4}, nil
	case MethodPayPal:
		return PayPalPayment{Capture: in.Capture, PayerID: in.PayerID}, nil
	}
	return nil, &ValidationError{Field: "payment_method", Msg: fmt.Sprintf("unsupported payment method %q", method)}
}

// PaymentRecord is the flat form of a PaymentResult used on the wire and in
// every store.
type PaymentRecord struct {
	Method       PaymentMethod `json:"method"              bson:"method"`
	ID           string        `json:"id"                  bson:"id"`
	Status       string        `json:"status"              bson:"status"`
	UpdateTime   time.Time     `json:"update_time"         bson:"updateTime"`
	EmailAddress string        `json:"email_address"       bson:"emailAddress"`
	CardLast4    string        `json:"card_last4,omitempty" bson:"cardLast4,omitempty"`
	PayerID      string        `json:"payer_id,omitempty"  bson:"payerId,omitempty"`
}

func RecordOf(p PaymentResult) *PaymentRecord {
	if p == nil {
		return nil
	}
	c := p.Details()
	rec := &PaymentRecord{
		Method:       p.Method(),
		ID:           c.TransactionID,
		Status:       c.Status,
		UpdateTime:   c.ConfirmedAt,
		EmailAddress: c.PayerEmail,
	}
	switch v := p.(type) {
	case CardPayment:
		rec.CardLast4 = v.CardLast4
	case PayPalPayment:
		rec.PayerID = v.PayerID
	}
	return rec
}

func (r *PaymentRecord) Result() (PaymentResult, error) {
	if r == nil {
		return nil, nil
	}
	c := Capture{TransactionID: r.ID, Status: r.Status, ConfirmedAt: r.UpdateTime.UTC(), PayerEmail: r.EmailAddress}
	switch r.Method {
	case MethodCreditCard:
		return CardPayment{Capture: c, CardLast4: r.CardLast4}, nil
	case MethodPayPal:
		return PayPalPayment{Capture: c, PayerID: r.PayerID}, nil
	}
	return nil, fmt.Errorf("unknown payment method %q in stored result", r.Method)
}
