package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/models"
)

// GigSource refills the pending gig pool.
type GigSource interface {
	FetchGigs(ctx context.Context) []models.Gig
}

// GigPollWorker keeps the gig board stocked between client polls.
type GigPollWorker struct {
	gigs     GigSource
	interval time.Duration
}

func NewGigPollWorker(gigs GigSource, interval time.Duration) *GigPollWorker {
	return &GigPollWorker{gigs: gigs, interval: interval}
}

func (w *GigPollWorker) Name() string            { return "gig-poll" }
func (w *GigPollWorker) Interval() time.Duration { return w.interval }

func (w *GigPollWorker) Run(ctx context.Context) error {
	w.gigs.FetchGigs(ctx)
	return nil
}

// PaymeExpirer cancels stale pending Payme transactions.
type PaymeExpirer interface {
	ExpirePending(ctx context.Context) (int64, error)
}

// PaymeExpiryWorker sweeps Payme top-ups stuck in the pending state.
type PaymeExpiryWorker struct {
	payme PaymeExpirer
	log   logrus.FieldLogger
}

func NewPaymeExpiryWorker(payme PaymeExpirer, logger logrus.FieldLogger) *PaymeExpiryWorker {
	return &PaymeExpiryWorker{payme: payme, log: logger.WithField("worker", "payme-expiry")}
}

func (w *PaymeExpiryWorker) Name() string            { return "payme-expiry" }
func (w *PaymeExpiryWorker) Interval() time.Duration { return time.Minute }

func (w *PaymeExpiryWorker) Run(ctx context.Context) error {
	n, err := w.payme.ExpirePending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.WithField("cancelled", n).Info("expired pending top-ups")
	}
	return nil
}

// LimiterCleaner trims idle rate limiters.
type LimiterCleaner interface {
	Cleanup() int
}

// LimiterCleanupWorker bounds the per-user rate limiter map.
type LimiterCleanupWorker struct {
	limiter LimiterCleaner
}

func NewLimiterCleanupWorker(limiter LimiterCleaner) *LimiterCleanupWorker {
	return &LimiterCleanupWorker{limiter: limiter}
}

func (w *LimiterCleanupWorker) Name() string            { return "ratelimit-cleanup" }
func (w *LimiterCleanupWorker) Interval() time.Duration { return 10 * time.Minute }

func (w *LimiterCleanupWorker) Run(context.Context) error {
	w.limiter.Cleanup()
	return nil
}
