package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/storefront/internal/order"
)

var ErrDeclined = errors.New("payment declined")

// Simulated stands in for a card processor. Captures always settle unless the
// random failure rate triggers.
type Simulated struct {
	Delay       time.Duration
	FailureRate float64
	// TrustUnknown makes Verify report transactions this instance never saw
	// as completed. Used when captures happen in another process.
	TrustUnknown bool

	mu       sync.Mutex
	captured map[string]order.PaymentInput
	now      func() time.Time
}

func NewSimulated(delay time.Duration, failureRate float64) *Simulated {
	return &Simulated{Delay: delay, FailureRate: failureRate, captured: map[string]order.PaymentInput{}, now: time.Now}
}

func (s *Simulated) CaptureCard(ctx context.Context, amount decimal.Decimal, cardLast4, email string) (order.PaymentInput, error) {
	log.Printf("[payment] simulated capture amount=%s card=****%s", amount.StringFixed(2), cardLast4)
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return order.PaymentInput{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.FailureRate > 0 && rand.Float64() < s.FailureRate {
		return order.PaymentInput{}, ErrDeclined
	}

	now := s.clock()
	in := order.PaymentInput{
		Capture: order.Capture{
			TransactionID: fmt.Sprintf("CARD_%d", now.UnixNano()),
			Status:        order.StatusCompleted,
			ConfirmedAt:   now.UTC(),
			PayerEmail:    email,
		},
		CardLast4: cardLast4,
	}
	s.mu.Lock()
	if s.captured == nil {
		s.captured = map[string]order.PaymentInput{}
	}
	s.captured[in.TransactionID] = in
	s.mu.Unlock()
	return in, nil
}

func (s *Simulated) Verify(ctx context.Context, method order.PaymentMethod, txnID string) (order.Verification, error) {
	if err := ctx.Err(); err != nil {
		return order.Verification{}, err
	}
	s.mu.Lock()
	in, ok := s.captured[txnID]
	s.mu.Unlock()
	switch {
	case ok:
		return order.Verification{State: order.VerifyCompleted, Payment: in}, nil
	case s.TrustUnknown:
		return order.Verification{State: order.VerifyCompleted, Payment: order.PaymentInput{
			Capture: order.Capture{TransactionID: txnID, Status: order.StatusCompleted, ConfirmedAt: s.clock().UTC()},
		}}, nil
	}
	return order.Verification{State: order.VerifyPending}, nil
}

func (s *Simulated) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
