package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/storefront/internal/order"
)

type State string

const (
	StateEditing         State = "editing"
	StateValidating      State = "validating"
	StateAwaitingPayment State = "awaiting_payment"
	StateConfirming      State = "confirming"
	StateConfirmed       State = "confirmed"
	StateFailed          State = "failed"
)

var (
	ErrBusy             = errors.New("a checkout attempt is already running")
	ErrAlreadyConfirmed = errors.New("checkout already confirmed")
)

type FailureKind string

const (
	KindValidation       FailureKind = "validation"
	KindCapture          FailureKind = "capture"
	KindOrderCreation    FailureKind = "order_creation"
	KindPaymentRecording FailureKind = "payment_recording"
)

// Failure is the single user-facing outcome of a failed attempt. OrderID is
// set when the order exists on the server but was not marked paid.
type Failure struct {
	Kind          FailureKind
	Message       string
	OrderID       string
	TransactionID string
	Err           error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

// IsFailure reports whether err is a checkout Failure of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

const (
	msgPaymentFailed       = "Payment failed. Please try again."
	msgPayPalFailed        = "PayPal payment failed. Please try again."
	msgRecordFailedPattern = "Payment recorded but order confirmation failed. Please contact support with order %s."
	cardPayerEmail         = "card-payment@shop.com"
)

// Session is the signed-in shopper and their cart.
type Session struct {
	UserID string
	Token  string
	Cart   CartStore
}

// CardCapturer charges a card and reports the settled transaction.
type CardCapturer interface {
	CaptureCard(ctx context.Context, amount decimal.Decimal, cardLast4, email string) (order.PaymentInput, error)
}

// PayPalApproval is what the PayPal button hands back after the buyer approves.
type PayPalApproval struct {
	OrderID    string
	PayerEmail string
	PayerID    string
}

type Confirmation struct {
	OrderID       string
	TotalPrice    decimal.Decimal
	PaymentMethod order.PaymentMethod
	TransactionID string
	CardLast4     string
	PayerEmail    string
	Items         []CartItem
}

func (c *Confirmation) OrderPath() string { return "/orders/" + c.OrderID }

type Orchestrator struct {
	api      OrderAPI
	session  *Session
	capturer CardCapturer
	now      func() time.Time

	mu      sync.Mutex
	state   State
	busy    bool
	failure *Failure
}

func NewOrchestrator(api OrderAPI, session *Session, capturer CardCapturer) *Orchestrator {
	return &Orchestrator{api: api, session: session, capturer: capturer, now: time.Now, state: StateEditing}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) LastFailure() *Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failure
}

// Reset returns a failed checkout to editing.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateFailed && !o.busy {
		o.state = StateEditing
		o.failure = nil
	}
}

func (o *Orchestrator) PayByCard(ctx context.Context, ship order.Address, card CardDetails) (*Confirmation, error) {
	cart, err := o.begin(ctx, ship)
	if err != nil {
		return nil, err
	}
	if err := ValidateCard(card, o.now()); err != nil {
		return nil, o.reject(err)
	}

	o.setState(StateAwaitingPayment)
	pay, err := o.capturer.CaptureCard(ctx, cart.Total(), card.Last4(), cardPayerEmail)
	if err != nil {
		return nil, o.fail(&Failure{Kind: KindCapture, Message: msgPaymentFailed, Err: err})
	}
	return o.complete(ctx, cart, ship, order.MethodCreditCard, pay, msgPaymentFailed, msgPaymentFailed)
}

func (o *Orchestrator) ApprovePayPal(ctx context.Context, ship order.Address, a PayPalApproval) (*Confirmation, error) {
	cart, err := o.begin(ctx, ship)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.OrderID) == "" {
		return nil, o.reject(errors.New("PayPal did not return a transaction id"))
	}

	o.setState(StateAwaitingPayment)
	pay := order.PaymentInput{
		Capture: order.Capture{
			TransactionID: strings.TrimSpace(a.OrderID),
			Status:        order.StatusCompleted,
			ConfirmedAt:   o.now().UTC(),
			PayerEmail:    strings.TrimSpace(a.PayerEmail),
		},
		PayerID: a.PayerID,
	}
	return o.complete(ctx, cart, ship, order.MethodPayPal, pay, msgPayPalFailed, "")
}

// begin claims the orchestrator for one attempt and runs the shared checks.
func (o *Orchestrator) begin(ctx context.Context, ship order.Address) (Cart, error) {
	o.mu.Lock()
	switch {
	case o.busy:
		o.mu.Unlock()
		return Cart{}, ErrBusy
	case o.state == StateConfirmed:
		o.mu.Unlock()
		return Cart{}, ErrAlreadyConfirmed
	}
	o.busy = true
	o.state = StateValidating
	o.failure = nil
	o.mu.Unlock()

	cart, err := o.session.Cart.Load(ctx)
	if err != nil {
		return Cart{}, o.reject(fmt.Errorf("Could not load your cart: %w", err))
	}
	if cart.Empty() {
		return Cart{}, o.reject(ErrCartEmpty)
	}
	if err := ValidateShipping(ship); err != nil {
		return Cart{}, o.reject(err)
	}
	return cart, nil
}

func (o *Orchestrator) complete(ctx context.Context, cart Cart, ship order.Address, method order.PaymentMethod,
	pay order.PaymentInput, createMsg, recordMsg string) (*Confirmation, error) {
	o.setState(StateConfirming)
	txn := pay.TransactionID

	created, err := o.api.Create(ctx, createRequest(cart, ship, method, txn), "checkout-"+txn)
	if err != nil {
		return nil, o.fail(&Failure{Kind: KindOrderCreation, Message: createMsg, TransactionID: txn, Err: err})
	}

	paid, err := o.api.MarkPaid(ctx, created.ID, payRequest(pay))
	if err != nil {
		msg := recordMsg
		if msg == "" {
			msg = fmt.Sprintf(msgRecordFailedPattern, created.ID)
		}
		log.Printf("[checkout] order %s created but payment %s not recorded: %v", created.ID, txn, err)
		return nil, o.fail(&Failure{Kind: KindPaymentRecording, Message: msg, OrderID: created.ID, TransactionID: txn, Err: err})
	}

	if err := o.session.Cart.Clear(ctx); err != nil {
		log.Printf("[checkout] clear cart after order %s: %v", paid.ID, err)
	}
	conf := &Confirmation{
		OrderID:       paid.ID,
		TotalPrice:    paid.TotalPrice,
		PaymentMethod: method,
		TransactionID: txn,
		CardLast4:     pay.CardLast4,
		PayerEmail:    pay.PayerEmail,
		Items:         cart.Items,
	}
	o.mu.Lock()
	o.state = StateConfirmed
	o.busy = false
	o.mu.Unlock()
	return conf, nil
}

func createRequest(cart Cart, ship order.Address, method order.PaymentMethod, txn string) order.CreateOrderRequest {
	items := make([]order.CreateOrderItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, order.CreateOrderItem{
			ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Image: it.Image,
		})
	}
	return order.CreateOrderRequest{
		Items:            items,
		ShippingAddress:  ship,
		PaymentMethod:    string(method),
		TotalPrice:       cart.Total(),
		PaymentReference: txn,
	}
}

func payRequest(p order.PaymentInput) order.PayRequest {
	return order.PayRequest{
		ID:           p.TransactionID,
		Status:       p.Status,
		UpdateTime:   p.ConfirmedAt.UTC().Format(time.RFC3339),
		EmailAddress: p.PayerEmail,
		CardLast4:    p.CardLast4,
		PayerID:      p.PayerID,
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// reject ends a validation failure back in editing.
func (o *Orchestrator) reject(err error) error {
	f := &Failure{Kind: KindValidation, Message: err.Error(), Err: err}
	o.mu.Lock()
	o.state = StateEditing
	o.busy = false
	o.failure = f
	o.mu.Unlock()
	return f
}

func (o *Orchestrator) fail(f *Failure) error {
	o.mu.Lock()
	o.state = StateFailed
	o.busy = false
	o.failure = f
	o.mu.Unlock()
	return f
}
