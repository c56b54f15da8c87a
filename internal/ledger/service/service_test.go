package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"github.com/mhminhas/thinklab/internal/clock"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	"github.com/mhminhas/thinklab/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testLedger struct {
	svc   ledgerdomain.Service
	db    *gorm.DB
	genID *snowflake.Node
	clock *clock.FakeClock
}

func newTestLedger(t *testing.T) *testLedger {
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

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	return &testLedger{svc: svc, db: db, genID: node, clock: fake}
}

func (l *testLedger) newAccount(t *testing.T, balance int64) snowflake.ID {
	t.Helper()

	account := accountdomain.Account{
		ID:          l.genID.Generate(),
		Email:       fmt.Sprintf("%s@test.dev", l.genID.Generate()),
		DisplayName: "test",
		Role:        accountdomain.RoleUser,
		Active:      true,
		CreatedAt:   l.clock.Now(),
		UpdatedAt:   l.clock.Now(),
	}
	require.NoError(t, l.db.Create(&account).Error)
	if balance > 0 {
		require.NoError(t, l.svc.Grant(context.Background(), account.ID, balance, "seed"))
	}
	return account.ID
}

func (l *testLedger) balance(t *testing.T, accountID snowflake.ID) int64 {
	t.Helper()
	balance, err := l.svc.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return balance
}

func TestReserveDebitsBalance(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	record, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusReserved, record.Status)
	assert.Equal(t, int64(5), record.Cost)
	assert.Equal(t, int64(15), l.balance(t, accountID))
}

func TestReserveInsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 3)

	_, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	// No hold, no record, balance untouched.
	assert.Equal(t, int64(3), l.balance(t, accountID))
	var count int64
	require.NoError(t, l.db.Model(&ledgerdomain.ActionRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserveZeroCost(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 0)

	record, err := l.svc.Reserve(context.Background(), accountID, "free_action", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusReserved, record.Status)
	assert.Equal(t, int64(0), l.balance(t, accountID))
}

func TestReserveMissingOrInactiveAccount(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.svc.Reserve(context.Background(), l.genID.Generate(), "text_generation", 5, nil)
	require.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)

	accountID := l.newAccount(t, 20)
	require.NoError(t, l.db.Exec(`UPDATE accounts SET active = ? WHERE id = ?`, false, accountID).Error)

	_, err = l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestCommitIsTerminal(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	record, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)

	committed, err := l.svc.Commit(context.Background(), record.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusCommitted, committed.Status)
	require.NotNil(t, committed.ResolvedAt)

	// A resolved record can never transition again.
	_, err = l.svc.Commit(context.Background(), record.ID, nil, nil)
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidStateTransition)

	_, err = l.svc.Refund(context.Background(), record.ID, ledgerdomain.RefundInitiatorCaller, "late refund")
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidStateTransition)

	// The spend stuck.
	assert.Equal(t, int64(15), l.balance(t, accountID))
}

func TestRefundRestoresBalance(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	record, err := l.svc.Reserve(context.Background(), accountID, "image_generation", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), l.balance(t, accountID))

	refunded, err := l.svc.Refund(context.Background(), record.ID, ledgerdomain.RefundInitiatorCaller, "provider timeout")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusRefunded, refunded.Status)
	require.NotNil(t, refunded.LastError)
	assert.Equal(t, "provider timeout", *refunded.LastError)
	assert.Equal(t, int64(20), l.balance(t, accountID))

	// Caller retry on a terminal record fails; no double credit.
	_, err = l.svc.Refund(context.Background(), record.ID, ledgerdomain.RefundInitiatorCaller, "retry")
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidStateTransition)
	assert.Equal(t, int64(20), l.balance(t, accountID))
}

func TestSweepRefundIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	record, err := l.svc.Reserve(context.Background(), accountID, "image_generation", 10, nil)
	require.NoError(t, err)

	_, err = l.svc.Refund(context.Background(), record.ID, ledgerdomain.RefundInitiatorSweep, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(20), l.balance(t, accountID))

	// The sweep tolerates records a racing resolver already settled.
	again, err := l.svc.Refund(context.Background(), record.ID, ledgerdomain.RefundInitiatorSweep, "stale")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusRefunded, again.Status)
	assert.Equal(t, int64(20), l.balance(t, accountID))

	committed, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)
	_, err = l.svc.Commit(context.Background(), committed.ID, nil, nil)
	require.NoError(t, err)

	_, err = l.svc.Refund(context.Background(), committed.ID, ledgerdomain.RefundInitiatorSweep, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(15), l.balance(t, accountID))
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 5)

	const workers = 8
	results := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(0), l.balance(t, accountID))

	var count int64
	require.NoError(t, l.db.Model(&ledgerdomain.ActionRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConservation(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 10)

	committed, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)
	_, err = l.svc.Commit(context.Background(), committed.ID, nil, nil)
	require.NoError(t, err)

	refunded, err := l.svc.Reserve(context.Background(), accountID, "text_summarization", 3, nil)
	require.NoError(t, err)
	_, err = l.svc.Refund(context.Background(), refunded.ID, ledgerdomain.RefundInitiatorCaller, "failed")
	require.NoError(t, err)

	require.NoError(t, l.svc.Grant(context.Background(), accountID, 7, "bonus"))

	var granted int64
	require.NoError(t, l.db.Model(&ledgerdomain.CreditGrant{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&granted).Error)

	var spent int64
	require.NoError(t, l.db.Model(&ledgerdomain.ActionRecord{}).
		Where("account_id = ? AND status = ?", accountID, ledgerdomain.StatusCommitted).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&spent).Error)

	// Every credit granted is either still in the wallet or committed.
	assert.Equal(t, granted, l.balance(t, accountID)+spent)
}

func TestGrantValidation(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 0)

	require.ErrorIs(t, l.svc.Grant(context.Background(), accountID, 0, "zero"), ledgerdomain.ErrInvalidAmount)
	require.ErrorIs(t, l.svc.Grant(context.Background(), accountID, -5, "negative"), ledgerdomain.ErrInvalidAmount)
	require.ErrorIs(t, l.svc.Grant(context.Background(), l.genID.Generate(), 5, "ghost"), ledgerdomain.ErrAccountNotFound)
}

func TestStaleListing(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 30)

	old, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)

	l.clock.Advance(10 * time.Minute)

	fresh, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)

	cutoff := l.clock.Now().Add(-5 * time.Minute)
	stale, err := l.svc.Stale(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	// Resolved records never count as stale.
	_, err = l.svc.Refund(context.Background(), old.ID, ledgerdomain.RefundInitiatorSweep, "stale")
	require.NoError(t, err)

	stale, err = l.svc.Stale(context.Background(), cutoff, 100)
	require.NoError(t, err)
	assert.Empty(t, stale)
	_ = fresh
}

func TestRecordFailureOnlyWhileReserved(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	record, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)

	require.NoError(t, l.svc.RecordFailure(context.Background(), record.ID, "provider 500"))
	reloaded, err := l.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "provider 500", *reloaded.LastError)

	_, err = l.svc.Commit(context.Background(), record.ID, nil, nil)
	require.NoError(t, err)

	require.NoError(t, l.svc.RecordFailure(context.Background(), record.ID, "late error"))
	reloaded, err = l.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "provider 500", *reloaded.LastError)
}

func TestCommitAttachesMetadata(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	record, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
	require.NoError(t, err)

	committed, err := l.svc.Commit(context.Background(), record.ID,
		datatypes.JSON(`{"content":"done"}`),
		datatypes.JSON(`{"provider_latency_ms":42}`),
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider_latency_ms":42}`, string(committed.Metadata))
}

func TestHistoryRejectsBadPageToken(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 20)

	_, _, err := l.svc.History(context.Background(), accountID, pagination.Pagination{
		PageToken: "not-a-cursor",
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidCursor)
}

func TestHistoryPagination(t *testing.T) {
	l := newTestLedger(t)
	accountID := l.newAccount(t, 100)

	var ids []snowflake.ID
	for i := 0; i < 5; i++ {
		record, err := l.svc.Reserve(context.Background(), accountID, "text_generation", 5, nil)
		require.NoError(t, err)
		ids = append(ids, record.ID)
		l.clock.Advance(time.Second)
	}

	var seen []snowflake.ID
	page := pagination.Pagination{PageSize: 2}
	for {
		records, info, err := l.svc.History(context.Background(), accountID, page)
		require.NoError(t, err)
		for _, record := range records {
			seen = append(seen, record.ID)
		}
		if !info.HasMore {
			break
		}
		page.PageToken = info.NextPageToken
	}

	require.Len(t, seen, 5)
	// Newest first, no duplicates across pages.
	for i, id := range seen {
		assert.Equal(t, ids[len(ids)-1-i], id)
	}
}
