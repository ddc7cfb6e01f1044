package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/delivery"
	"github.com/geocoder89/parcelhub/internal/domain/job"
	"github.com/geocoder89/parcelhub/internal/jobs"
	"github.com/geocoder89/parcelhub/internal/notifications"
)

type fakeRepo struct {
	mu          sync.Mutex
	queue       []job.Job
	done        []string
	failed      []string
	rescheduled map[string]time.Time
}

func (r *fakeRepo) ClaimNext(_ context.Context, _ string) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}
	j := r.queue[0]
	r.queue = r.queue[1:]
	return j, nil
}

func (r *fakeRepo) MarkDone(_ context.Context, id string) error {
	r.mu.Lock()
	r.done = append(r.done, id)
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id string, _ string) error {
	r.mu.Lock()
	r.failed = append(r.failed, id)
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) Reschedule(_ context.Context, id string, runAt time.Time, _ string) error {
	r.mu.Lock()
	if r.rescheduled == nil {
		r.rescheduled = map[string]time.Time{}
	}
	r.rescheduled[id] = runAt
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) RequeueStaleProcessing(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type fakeLedger struct {
	sent    map[string]bool
	started []string
}

func (l *fakeLedger) TryStart(_ context.Context, kind, subjectID, _, _ string) error {
	if l.sent[kind+"/"+subjectID] {
		return delivery.ErrAlreadySent
	}
	l.started = append(l.started, kind+"/"+subjectID)
	return nil
}

func (l *fakeLedger) MarkSent(_ context.Context, kind, subjectID string) error {
	if l.sent == nil {
		l.sent = map[string]bool{}
	}
	l.sent[kind+"/"+subjectID] = true
	return nil
}

func (l *fakeLedger) MarkFailed(context.Context, string, string, string) error { return nil }

type fakeNotifier struct {
	err      error
	statuses []notifications.ParcelStatusInput
	receipts []notifications.PaymentReceiptInput
}

func (n *fakeNotifier) NotifyParcelStatus(_ context.Context, in notifications.ParcelStatusInput) error {
	if n.err != nil {
		return n.err
	}
	n.statuses = append(n.statuses, in)
	return nil
}

func (n *fakeNotifier) SendPaymentReceipt(_ context.Context, in notifications.PaymentReceiptInput) error {
	if n.err != nil {
		return n.err
	}
	n.receipts = append(n.receipts, in)
	return nil
}

func newTestWorker(repo *fakeRepo, ledger DeliveryLedger, n notifications.Notifier) *Worker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{WorkerID: "test"}, repo, ledger, n, log, nil, nil)
}

func statusJob(t *testing.T, id string, attempts, maxAttempts int) job.Job {
	t.Helper()
	raw, err := jobs.EncodePayload(jobs.JobParcelStatusChanged, jobs.ParcelStatusChangedPayload{
		ParcelID:       "p-1",
		TrackingCode:   "PH-01ABC",
		From:           "created",
		To:             "in_transit",
		SenderPhone:    "+233200000001",
		RecipientPhone: "+233200000002",
		ChangedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return job.Job{ID: id, Type: jobs.JobParcelStatusChanged.String(), Payload: raw, Attempts: attempts, MaxAttempts: maxAttempts}
}

func receiptJob(t *testing.T, id string) job.Job {
	t.Helper()
	raw, err := jobs.EncodePayload(jobs.JobPaymentReceipt, jobs.PaymentReceiptPayload{
		PaymentID:    "pay-1",
		ParcelID:     "p-1",
		TrackingCode: "PH-01ABC",
		Amount:       2500,
		Method:       "cash",
		SenderPhone:  "+233200000001",
		CompletedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return job.Job{ID: id, Type: jobs.JobPaymentReceipt.String(), Payload: raw, MaxAttempts: 8}
}

func TestProcessOneEmptyQueue(t *testing.T) {
	w := newTestWorker(&fakeRepo{}, &fakeLedger{}, &fakeNotifier{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil || processed {
		t.Fatalf("expected (false, nil), got (%v, %v)", processed, err)
	}
}

func TestProcessOneDeliversStatusChange(t *testing.T) {
	repo := &fakeRepo{queue: []job.Job{statusJob(t, "j-1", 0, 8)}}
	n := &fakeNotifier{}
	w := newTestWorker(repo, &fakeLedger{}, n)

	processed, err := w.ProcessOne(context.Background())
	if err != nil || !processed {
		t.Fatalf("expected (true, nil), got (%v, %v)", processed, err)
	}
	if len(repo.done) != 1 || repo.done[0] != "j-1" {
		t.Fatalf("job not marked done: %+v", repo.done)
	}
	if len(n.statuses) != 1 || n.statuses[0].To != "in_transit" {
		t.Fatalf("notifier not called as expected: %+v", n.statuses)
	}
	if s := w.Metrics().Snapshot(); s.Claimed != 1 || s.Done != 1 {
		t.Fatalf("unexpected metrics: %+v", s)
	}
}

func TestProcessOneSendsReceipt(t *testing.T) {
	repo := &fakeRepo{queue: []job.Job{receiptJob(t, "j-2")}}
	n := &fakeNotifier{}
	w := newTestWorker(repo, &fakeLedger{}, n)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(n.receipts) != 1 || n.receipts[0].Amount != 2500 {
		t.Fatalf("receipt not sent: %+v", n.receipts)
	}
}

func TestProcessOneSkipsAlreadySentNotification(t *testing.T) {
	ledger := &fakeLedger{}
	n := &fakeNotifier{}
	repo := &fakeRepo{queue: []job.Job{statusJob(t, "j-1", 0, 8), statusJob(t, "j-1-dup", 0, 8)}}
	w := newTestWorker(repo, ledger, n)

	_, _ = w.ProcessOne(context.Background())
	_, _ = w.ProcessOne(context.Background())

	if len(n.statuses) != 1 {
		t.Fatalf("notification sent %d times, want once", len(n.statuses))
	}
	if len(repo.done) != 2 {
		t.Fatalf("both jobs should complete, done=%v", repo.done)
	}
	if s := w.Metrics().Snapshot(); s.Duplicates != 1 || s.ClaimedByType[jobs.JobParcelStatusChanged.String()] != 2 {
		t.Fatalf("unexpected metrics: %+v", s)
	}
}

func TestProcessOneRetriesWithBackoff(t *testing.T) {
	repo := &fakeRepo{queue: []job.Job{statusJob(t, "j-1", 1, 8)}}
	w := newTestWorker(repo, &fakeLedger{}, &fakeNotifier{err: notifications.ErrProviderDown})

	before := time.Now().UTC()
	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	runAt, ok := repo.rescheduled["j-1"]
	if !ok {
		t.Fatalf("job should be rescheduled")
	}
	if runAt.Before(before.Add(4 * time.Second)) {
		t.Fatalf("run_at %v too early", runAt)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("job should not be dead-lettered yet")
	}
}

func TestProcessOneDeadLettersOnLastAttempt(t *testing.T) {
	repo := &fakeRepo{queue: []job.Job{statusJob(t, "j-1", 7, 8)}}
	w := newTestWorker(repo, &fakeLedger{}, &fakeNotifier{err: errors.New("boom")})

	_, _ = w.ProcessOne(context.Background())

	if len(repo.failed) != 1 {
		t.Fatalf("expected dead-letter, failed=%v", repo.failed)
	}
	s := w.Metrics().Snapshot()
	if s.DeadLettered != 1 {
		t.Fatalf("dead-letter not counted: %+v", s)
	}
	if s.LastError != "boom" || s.LastErrorAt == nil {
		t.Fatalf("last error not kept: %+v", s)
	}
}

func TestProcessOneFailsBadPayloadImmediately(t *testing.T) {
	bad := job.Job{ID: "j-bad", Type: jobs.JobPaymentReceipt.String(), Payload: json.RawMessage(`{"paymentId":""}`), MaxAttempts: 8}
	unknown := job.Job{ID: "j-unknown", Type: "parcel.teleported", Payload: json.RawMessage(`{}`), MaxAttempts: 8}
	repo := &fakeRepo{queue: []job.Job{bad, unknown}}
	w := newTestWorker(repo, &fakeLedger{}, &fakeNotifier{})

	_, _ = w.ProcessOne(context.Background())
	_, _ = w.ProcessOne(context.Background())

	if len(repo.failed) != 2 || len(repo.rescheduled) != 0 {
		t.Fatalf("permanent errors must not retry: failed=%v rescheduled=%v", repo.failed, repo.rescheduled)
	}
}

func TestRunDrainsAndStops(t *testing.T) {
	repo := &fakeRepo{queue: []job.Job{statusJob(t, "j-1", 0, 8), receiptJob(t, "j-2")}}
	w := newTestWorker(repo, &fakeLedger{}, &fakeNotifier{})
	w.cfg.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		n := len(repo.done)
		repo.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.done) != 2 {
		t.Fatalf("expected both jobs done, got %v", repo.done)
	}
	if w.Ready() {
		t.Fatalf("worker should not be ready after shutdown")
	}
}
