package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/dailyink/metrics"
)

const dedupeTTL = 48 * time.Hour

// Dispatcher delivers events in the background, at most once per submission.
type Dispatcher struct {
	n       Notifier
	dedupe  *Deduper
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(n Notifier, dedupe *Deduper, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{n: n, dedupe: dedupe, timeout: timeout, log: log.Named("notify")}
}

// Dispatch sends ev without blocking the caller.
func (d *Dispatcher) Dispatch(ev Event) {
	if d == nil || d.n == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if d.dedupe != nil && !d.dedupe.Claim(ctx, ev.Type+":"+ev.SubmissionID, dedupeTTL) {
			d.log.Debug("duplicate event skipped", zap.String("submission_id", ev.SubmissionID))
			return
		}
		if err := d.n.FeedbackUnlocked(ctx, ev); err != nil {
			metrics.NotifyFailures.Inc()
			d.log.Warn("notification failed",
				zap.String("submission_id", ev.SubmissionID), zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
