package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhminhas/thinklab/internal/clock"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	obsmetrics "github.com/mhminhas/thinklab/internal/observability/metrics"
	"github.com/mhminhas/thinklab/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepJobName = "stale_refund_sweep"

var ErrInvalidConfig = errors.New("invalid_reconciler_config")

type Params struct {
	fx.In

	Log    *zap.Logger
	Ledger ledgerdomain.Service
	Clock  clock.Clock
	Config Config               `optional:"true"`
	Lock   *ratelimit.SweepLock `optional:"true"`
}

// Reconciler refunds Reserved records that outlived the staleness
// threshold. The sweep is idempotent: a record resolved between claim
// and refund is skipped without error.
type Reconciler struct {
	log    *zap.Logger
	ledger ledgerdomain.Service
	clock  clock.Clock
	cfg    Config
	lock   *ratelimit.SweepLock
}

func New(p Params) (*Reconciler, error) {
	if p.Log == nil || p.Ledger == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Reconciler{
		log:    p.Log.Named("reconciler").With(zap.String("component", "reconciler")),
		ledger: p.Ledger,
		clock:  p.Clock,
		cfg:    p.Config.withDefaults(),
		lock:   p.Lock,
	}, nil
}

func (r *Reconciler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	sweepMetrics := obsmetrics.Sweep()
	sweepMetrics.IncJobRun(name)

	err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	sweepMetrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		r.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (r *Reconciler) RunOnce(parent context.Context) error {
	token, acquired, err := r.lock.Acquire(parent)
	if err != nil {
		r.log.Warn("sweep lock unavailable, running without it", zap.Error(err))
	} else if !acquired {
		r.log.Debug("sweep lock held by another replica, skipping run")
		return nil
	}
	defer func() {
		if token != "" {
			if err := r.lock.Release(parent, token); err != nil {
				r.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}
	}()

	return r.runJob(parent, sweepJobName, 30*time.Second, r.SweepJob)
}

func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := r.clock.Now().Add(r.cfg.RunInterval)
	sweepMetrics := obsmetrics.Sweep()

	for {
		if runLag := time.Since(nextRun); runLag > 0 {
			sweepMetrics.ObserveRunLoopLag(runLag)
		}
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(r.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepJob refunds every Reserved record older than the staleness cutoff.
func (r *Reconciler) SweepJob(ctx context.Context) error {
	cutoff := r.clock.Now().Add(-r.cfg.StaleThreshold)
	sweepMetrics := obsmetrics.Sweep()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		records, err := r.ledger.Stale(ctx, cutoff, r.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(records) == 0 {
			break
		}

		processed := 0
		for _, record := range records {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}

			refunded, err := r.ledger.Refund(ctx, record.ID, ledgerdomain.RefundInitiatorSweep, "stale reservation sweep")
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				r.log.Warn("sweep refund failed",
					zap.String("record_id", record.ID.String()),
					zap.String("account_id", record.AccountID.String()),
					zap.Error(err),
				)
				continue
			}
			processed++
			r.log.Info("stale reservation refunded",
				zap.String("record_id", record.ID.String()),
				zap.String("account_id", record.AccountID.String()),
				zap.String("kind", record.Kind),
				zap.Int64("cost", record.Cost),
				zap.String("status", string(refunded.Status)),
			)
		}

		sweepMetrics.AddBatchProcessed(sweepJobName, "action_records", processed)
		if processed == 0 {
			break
		}
	}

	return jobErr
}
