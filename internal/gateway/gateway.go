package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	obsmetrics "github.com/mhminhas/thinklab/internal/observability/metrics"
	"github.com/mhminhas/thinklab/internal/pricing"
	"github.com/mhminhas/thinklab/internal/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrReconciliationRequired signals that a failed action could not be
// refunded inline and is left Reserved for the sweep to resolve.
var ErrReconciliationRequired = errors.New("reconciliation_required")

type Params struct {
	fx.In

	Log        *zap.Logger
	Pricing    *pricing.Table
	Ledger     ledgerdomain.Service
	Provider   provider.Provider
	Config     Config              `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Gateway prices, reserves, invokes, and settles metered actions.
//
// Every action follows reserve -> call -> commit, with a compensating
// refund when the call fails. A refund that cannot be applied inline is
// left for the reconciliation sweep; the credits stay held until then.
type Gateway struct {
	log        *zap.Logger
	pricing    *pricing.Table
	ledger     ledgerdomain.Service
	provider   provider.Provider
	cfg        Config
	obsMetrics *obsmetrics.Metrics

	sleep func(time.Duration)
}

func New(p Params) *Gateway {
	return &Gateway{
		log:        p.Log.Named("gateway"),
		pricing:    p.Pricing,
		ledger:     p.Ledger,
		provider:   p.Provider,
		cfg:        p.Config.withDefaults(),
		obsMetrics: p.ObsMetrics,
		sleep:      time.Sleep,
	}
}

// Perform executes one priced action for the account and returns the
// resolved record. On provider failure the returned error wraps
// provider.ErrProviderFailure and the reservation has been refunded, or
// ErrReconciliationRequired when the refund itself kept failing.
func (g *Gateway) Perform(ctx context.Context, accountID snowflake.ID, rawKind string, input datatypes.JSON) (*ledgerdomain.ActionRecord, error) {
	kind, err := g.pricing.ParseKind(rawKind)
	if err != nil {
		return nil, err
	}
	cost, err := g.pricing.Cost(kind)
	if err != nil {
		return nil, err
	}

	record, err := g.ledger.Reserve(ctx, accountID, string(kind), cost, input)
	if err != nil {
		return nil, err
	}

	log := g.log.With(
		zap.String("record_id", record.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
	)

	// The reservation must resolve even if the caller goes away, so the
	// provider call and settlement run detached from the caller's cancel.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	output, callErr := g.provider.Invoke(callCtx, kind, input)
	elapsed := time.Since(start)
	g.obsMetrics.RecordProviderLatency(callCtx, string(kind), elapsed)

	if callErr != nil {
		if !errors.Is(callErr, provider.ErrProviderFailure) {
			callErr = provider.Failure(callErr)
		}
		log.Warn("provider call failed", zap.Error(callErr))
		return g.compensate(callCtx, record, callErr)
	}

	committed, err := g.ledger.Commit(callCtx, record.ID, output, callMetadata(elapsed))
	if err != nil {
		// A concurrent sweep refund can win the race on very slow calls.
		// The record is already terminal then and must stay untouched.
		log.Error("commit failed after successful call", zap.Error(err))
		return nil, err
	}

	log.Info("action committed", zap.Int64("cost", cost))
	return committed, nil
}

// callMetadata records how the provider call went alongside the output.
func callMetadata(elapsed time.Duration) datatypes.JSON {
	return datatypes.JSON(fmt.Sprintf(`{"provider_latency_ms":%d}`, elapsed.Milliseconds()))
}

// compensate refunds the reservation with bounded retries. The sweep is
// the backstop when every inline try fails.
func (g *Gateway) compensate(ctx context.Context, record *ledgerdomain.ActionRecord, callErr error) (*ledgerdomain.ActionRecord, error) {
	if err := g.ledger.RecordFailure(ctx, record.ID, callErr.Error()); err != nil {
		g.log.Warn("failed to record provider error", zap.String("record_id", record.ID.String()), zap.Error(err))
	}

	delay := g.cfg.RefundBackoff
	var lastErr error
	for attempt := 1; attempt <= g.cfg.RefundAttempts; attempt++ {
		refunded, err := g.ledger.Refund(ctx, record.ID, ledgerdomain.RefundInitiatorCaller, callErr.Error())
		if err == nil {
			return refunded, callErr
		}
		if errors.Is(err, ledgerdomain.ErrInvalidStateTransition) {
			// The sweep resolved it first; the money is already back.
			current, getErr := g.ledger.Get(ctx, record.ID)
			if getErr != nil {
				return nil, getErr
			}
			return current, callErr
		}
		lastErr = err
		g.log.Warn("refund attempt failed",
			zap.String("record_id", record.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < g.cfg.RefundAttempts {
			g.sleep(delay)
			delay *= 2
		}
	}

	g.log.Error("refund exhausted, leaving record for reconciliation",
		zap.String("record_id", record.ID.String()),
		zap.Error(lastErr),
	)
	return record, errors.Join(ErrReconciliationRequired, callErr)
}
