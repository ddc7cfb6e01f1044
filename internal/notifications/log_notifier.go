package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/parcelhub/internal/display"
)

var ErrProviderDown = errors.New("provider down (simulated)")

// LogNotifierConfig lets local runs simulate a slow or failing provider.
type LogNotifierConfig struct {
	Delay time.Duration
	Fail  bool
}

// LogNotifier writes notifications to the log instead of an SMS/email
// provider.
type LogNotifier struct {
	log *slog.Logger
	cfg LogNotifierConfig
}

func NewLogNotifier(log *slog.Logger, cfg LogNotifierConfig) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log, cfg: cfg}
}

func (n *LogNotifier) simulate(ctx context.Context) error {
	if n.cfg.Delay > 0 {
		select {
		case <-time.After(n.cfg.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n.cfg.Fail {
		return ErrProviderDown
	}
	return nil
}

func (n *LogNotifier) NotifyParcelStatus(ctx context.Context, in ParcelStatusInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.parcel_status",
		"tracking_code", in.TrackingCode,
		"status", display.FormatStatusText(in.To),
		"from", in.From,
		"reason", in.Reason,
		"sender_phone", in.SenderPhone,
		"recipient_phone", in.RecipientPhone,
	)
	return nil
}

func (n *LogNotifier) SendPaymentReceipt(ctx context.Context, in PaymentReceiptInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.payment_receipt",
		"payment_id", in.PaymentID,
		"tracking_code", in.TrackingCode,
		"amount", in.Amount,
		"method", display.FormatStatusText(in.Method),
		"sender_phone", in.SenderPhone,
		"sender_email", in.SenderEmail,
	)
	return nil
}
