package order

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeMC777/storefront/internal/metrics"
)

type VerifyState string

const (
	VerifyCompleted VerifyState = "completed"
	VerifyDeclined  VerifyState = "declined"
	VerifyPending   VerifyState = "pending"
)

type Verification struct {
	State   VerifyState
	Payment PaymentInput
}

// PaymentVerifier asks the payment provider what happened to a transaction.
type PaymentVerifier interface {
	Verify(ctx context.Context, method PaymentMethod, transactionID string) (Verification, error)
}

type ReconcilerConfig struct {
	// Grace is how long a payment may stay pending before it is checked.
	Grace time.Duration
	// MaxAge is how long an unverifiable payment is kept before release.
	MaxAge  time.Duration
	Workers int
	Retry   RetryConfig
}

// Reconciler settles orders left in PendingPayment, for example when the
// client captured a payment but never reported it.
type Reconciler struct {
	svc      *Service
	verifier PaymentVerifier
	cfg      ReconcilerConfig
	now      func() time.Time
}

func NewReconciler(svc *Service, v PaymentVerifier, cfg ReconcilerConfig) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Reconciler{svc: svc, verifier: v, cfg: cfg, now: svc.now}
}

type SweepStats struct {
	Checked  int
	Paid     int
	Released int
	Pending  int
	Failed   int
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	log.Printf("[reconcile] started interval=%s grace=%s max_age=%s", interval, r.cfg.Grace, r.cfg.MaxAge)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[reconcile] stopped")
			return
		case <-t.C:
			st, err := r.Sweep(ctx)
			if err != nil {
				log.Printf("[reconcile] sweep: %v", err)
				continue
			}
			if st.Checked > 0 {
				log.Printf("[reconcile] checked=%d paid=%d released=%d pending=%d failed=%d",
					st.Checked, st.Paid, st.Released, st.Pending, st.Failed)
			}
		}
	}
}

// Sweep handles every order whose payment has been pending longer than the
// grace period. Failures on one order do not stop the others.
func (r *Reconciler) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	now := r.now()
	pending, err := r.svc.ListPendingPayments(ctx, now.Add(-r.cfg.Grace))
	if err != nil {
		return st, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range pending {
		o := pending[i]
		g.Go(func() error {
			outcome := r.settle(gctx, &o, now)
			metrics.Reconciled.WithLabelValues(outcome).Inc()
			mu.Lock()
			defer mu.Unlock()
			st.Checked++
			switch outcome {
			case "paid":
				st.Paid++
			case "released":
				st.Released++
			case "pending":
				st.Pending++
			default:
				st.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return st, ctx.Err()
}

func (r *Reconciler) settle(ctx context.Context, o *Order, now time.Time) string {
	if o.Intent == nil {
		return "pending"
	}
	txn := o.Intent.TransactionID
	expired := r.cfg.MaxAge > 0 && now.Sub(o.Intent.StartedAt) > r.cfg.MaxAge

	v, err := retryWithBackoff(ctx, r.cfg.Retry, func() (Verification, error) {
		return r.verifier.Verify(ctx, o.PaymentMethod, txn)
	})
	if err != nil {
		log.Printf("[reconcile] verify id=%s txn=%s: %v", o.ID, txn, err)
		if expired {
			return r.release(ctx, o)
		}
		return "failed"
	}

	switch v.State {
	case VerifyCompleted:
		if v.Payment.TransactionID == "" {
			v.Payment.TransactionID = txn
		}
		if _, err := r.svc.MarkPaid(ctx, o.ID, System, v.Payment); err != nil {
			log.Printf("[reconcile] mark paid id=%s txn=%s: %v", o.ID, txn, err)
			return "failed"
		}
		return "paid"
	case VerifyDeclined:
		return r.release(ctx, o)
	}
	if expired {
		return r.release(ctx, o)
	}
	return "pending"
}

func (r *Reconciler) release(ctx context.Context, o *Order) string {
	if _, err := r.svc.ReleasePayment(ctx, o.ID); err != nil {
		log.Printf("[reconcile] release id=%s: %v", o.ID, err)
		return "failed"
	}
	return "released"
}
