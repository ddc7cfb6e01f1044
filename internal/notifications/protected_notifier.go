package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen = errors.New("notification circuit open")
	// ErrNoRecipient marks a notification with no phone or email to send
	// to. Retrying cannot fix it and it does not count against the provider.
	ErrNoRecipient = errors.New("notification has no recipient")
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type ProtectedNotifierConfig struct {
	// per-send deadline
	Timeout time.Duration
	// consecutive provider failures that open the circuit
	FailureThreshold int
	// time spent open before trial sends are let through
	Cooldown time.Duration
	// concurrent trial sends while half-open
	HalfOpenMaxCalls int
	// called outside the lock after every state change
	OnStateChange func(from, to BreakerState)
}

// ProtectedNotifier guards the SMS/email provider: each send gets a deadline
// and repeated provider failures stop sends for a cooldown so queued jobs
// back off instead of piling onto a dead provider.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trials   int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &ProtectedNotifier{inner: inner, cfg: cfg}
}

func (n *ProtectedNotifier) NotifyParcelStatus(ctx context.Context, in ParcelStatusInput) error {
	if in.SenderPhone == "" && in.SenderEmail == "" && in.RecipientPhone == "" {
		return ErrNoRecipient
	}
	return n.send(ctx, func(ctx context.Context) error {
		return n.inner.NotifyParcelStatus(ctx, in)
	})
}

func (n *ProtectedNotifier) SendPaymentReceipt(ctx context.Context, in PaymentReceiptInput) error {
	if in.SenderPhone == "" && in.SenderEmail == "" {
		return ErrNoRecipient
	}
	return n.send(ctx, func(ctx context.Context) error {
		return n.inner.SendPaymentReceipt(ctx, in)
	})
}

func (n *ProtectedNotifier) State() BreakerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *ProtectedNotifier) send(ctx context.Context, fn func(context.Context) error) error {
	if !n.admit() {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := fn(sendCtx)
	// a shutdown is not the provider's fault
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		n.release()
		return err
	}
	n.record(err)
	return err
}

func (n *ProtectedNotifier) admit() bool {
	n.mu.Lock()
	from := n.state

	ok := true
	switch n.state {
	case BreakerOpen:
		if time.Since(n.openedAt) < n.cfg.Cooldown {
			ok = false
			break
		}
		n.state = BreakerHalfOpen
		n.trials = 1
	case BreakerHalfOpen:
		if n.trials >= n.cfg.HalfOpenMaxCalls {
			ok = false
			break
		}
		n.trials++
	}

	to := n.state
	n.mu.Unlock()

	n.changed(from, to)
	return ok
}

func (n *ProtectedNotifier) release() {
	n.mu.Lock()
	if n.state == BreakerHalfOpen && n.trials > 0 {
		n.trials--
	}
	n.mu.Unlock()
}

func (n *ProtectedNotifier) record(err error) {
	n.mu.Lock()
	from := n.state

	if n.state == BreakerHalfOpen && n.trials > 0 {
		n.trials--
	}

	switch {
	case err == nil:
		n.failures = 0
		n.state = BreakerClosed
	case n.state == BreakerHalfOpen:
		n.state = BreakerOpen
		n.openedAt = time.Now()
	default:
		n.failures++
		if n.failures >= n.cfg.FailureThreshold {
			n.state = BreakerOpen
			n.openedAt = time.Now()
		}
	}

	to := n.state
	n.mu.Unlock()

	n.changed(from, to)
}

func (n *ProtectedNotifier) changed(from, to BreakerState) {
	if from != to && n.cfg.OnStateChange != nil {
		n.cfg.OnStateChange(from, to)
	}
}
