package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"github.com/mhminhas/thinklab/internal/clock"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	ledgerservice "github.com/mhminhas/thinklab/internal/ledger/service"
	"github.com/mhminhas/thinklab/internal/pricing"
	"github.com/mhminhas/thinklab/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubProvider struct {
	err    error
	called int
}

func (p *stubProvider) Invoke(_ context.Context, kind pricing.ActionKind, _ datatypes.JSON) (datatypes.JSON, error) {
	p.called++
	if p.err != nil {
		return nil, p.err
	}
	return datatypes.JSON(fmt.Sprintf(`{"content":"%s done"}`, kind)), nil
}

// flakyLedger fails the first refundFailures refund attempts.
type flakyLedger struct {
	ledgerdomain.Service
	refundFailures int
}

func (l *flakyLedger) Refund(ctx context.Context, recordID snowflake.ID, initiator ledgerdomain.RefundInitiator, reason string) (*ledgerdomain.ActionRecord, error) {
	if l.refundFailures > 0 {
		l.refundFailures--
		return nil, errors.New("db unavailable")
	}
	return l.Service.Refund(ctx, recordID, initiator, reason)
}

type gatewayFixture struct {
	db        *gorm.DB
	ledger    ledgerdomain.Service
	clock     *clock.FakeClock
	genID     *snowflake.Node
	accountID snowflake.ID
}

func newFixture(t *testing.T, balance int64) *gatewayFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&ledgerdomain.ActionRecord{},
		&ledgerdomain.CreditGrant{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	account := accountdomain.Account{
		ID:     node.Generate(),
		Email:  "gateway@test.dev",
		Role:   accountdomain.RoleUser,
		Active: true,
	}
	require.NoError(t, db.Create(&account).Error)
	if balance > 0 {
		require.NoError(t, ledger.Grant(context.Background(), account.ID, balance, "seed"))
	}

	return &gatewayFixture{db: db, ledger: ledger, clock: fake, genID: node, accountID: account.ID}
}

func newGateway(t *testing.T, ledger ledgerdomain.Service, p provider.Provider) *Gateway {
	t.Helper()
	g := New(Params{
		Log:      zap.NewNop(),
		Pricing:  pricing.NewTable(),
		Ledger:   ledger,
		Provider: p,
	})
	g.sleep = func(time.Duration) {}
	return g
}

func (f *gatewayFixture) balance(t *testing.T) int64 {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), f.accountID)
	require.NoError(t, err)
	return balance
}

func TestPerformCommitsOnSuccess(t *testing.T) {
	f := newFixture(t, 20)
	g := newGateway(t, f.ledger, &stubProvider{})

	record, err := g.Perform(context.Background(), f.accountID, "text_generation", datatypes.JSON(`{"prompt":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusCommitted, record.Status)
	assert.Equal(t, int64(5), record.Cost)
	assert.NotEmpty(t, record.Output)
	assert.Contains(t, string(record.Metadata), "provider_latency_ms")
	assert.Equal(t, int64(15), f.balance(t))
}

func TestPerformRefundsOnProviderFailure(t *testing.T) {
	f := newFixture(t, 20)
	g := newGateway(t, f.ledger, &stubProvider{err: errors.New("upstream 500")})

	record, err := g.Perform(context.Background(), f.accountID, "image_generation", nil)
	require.ErrorIs(t, err, provider.ErrProviderFailure)
	require.NotNil(t, record)
	assert.Equal(t, ledgerdomain.StatusRefunded, record.Status)
	require.NotNil(t, record.LastError)

	// The hold came back in full.
	assert.Equal(t, int64(20), f.balance(t))
}

func TestPerformUnknownKind(t *testing.T) {
	f := newFixture(t, 20)
	stub := &stubProvider{}
	g := newGateway(t, f.ledger, stub)

	_, err := g.Perform(context.Background(), f.accountID, "mind_reading", nil)
	require.ErrorIs(t, err, pricing.ErrUnknownActionKind)

	// Rejected before any reservation or provider call.
	assert.Zero(t, stub.called)
	assert.Equal(t, int64(20), f.balance(t))
	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.ActionRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPerformInsufficientBalance(t *testing.T) {
	f := newFixture(t, 2)
	stub := &stubProvider{}
	g := newGateway(t, f.ledger, stub)

	_, err := g.Perform(context.Background(), f.accountID, "text_generation", nil)
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)
	assert.Zero(t, stub.called)
	assert.Equal(t, int64(2), f.balance(t))
}

func TestPerformRetriesRefund(t *testing.T) {
	f := newFixture(t, 20)
	flaky := &flakyLedger{Service: f.ledger, refundFailures: 2}
	g := newGateway(t, flaky, &stubProvider{err: errors.New("upstream 500")})

	record, err := g.Perform(context.Background(), f.accountID, "text_generation", nil)
	require.ErrorIs(t, err, provider.ErrProviderFailure)
	assert.Equal(t, ledgerdomain.StatusRefunded, record.Status)
	assert.Equal(t, int64(20), f.balance(t))
}

func TestPerformLeavesRecordForReconciliation(t *testing.T) {
	f := newFixture(t, 20)
	flaky := &flakyLedger{Service: f.ledger, refundFailures: 100}
	g := newGateway(t, flaky, &stubProvider{err: errors.New("upstream 500")})

	record, err := g.Perform(context.Background(), f.accountID, "text_generation", nil)
	require.ErrorIs(t, err, ErrReconciliationRequired)
	require.ErrorIs(t, err, provider.ErrProviderFailure)
	require.NotNil(t, record)

	// The hold stays open until the sweep resolves it.
	current, getErr := f.ledger.Get(context.Background(), record.ID)
	require.NoError(t, getErr)
	assert.Equal(t, ledgerdomain.StatusReserved, current.Status)
	assert.Equal(t, int64(15), f.balance(t))

	// The sweep backstop then returns the credits.
	refunded, sweepErr := f.ledger.Refund(context.Background(), record.ID, ledgerdomain.RefundInitiatorSweep, "stale reservation sweep")
	require.NoError(t, sweepErr)
	assert.Equal(t, ledgerdomain.StatusRefunded, refunded.Status)
	assert.Equal(t, int64(20), f.balance(t))
}

// cancelingProvider drops the caller mid-call, like a client hangup.
type cancelingProvider struct {
	cancel context.CancelFunc
}

func (p *cancelingProvider) Invoke(_ context.Context, kind pricing.ActionKind, _ datatypes.JSON) (datatypes.JSON, error) {
	p.cancel()
	return datatypes.JSON(fmt.Sprintf(`{"content":"%s done"}`, kind)), nil
}

func TestPerformSurvivesCallerCancel(t *testing.T) {
	f := newFixture(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := newGateway(t, f.ledger, &cancelingProvider{cancel: cancel})

	// The reservation still settles even though the caller went away
	// during the provider call.
	record, err := g.Perform(ctx, f.accountID, "text_generation", nil)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusCommitted, record.Status)
	assert.Equal(t, int64(15), f.balance(t))
}
