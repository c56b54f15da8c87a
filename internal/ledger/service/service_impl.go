package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/internal/clock"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	obsmetrics "github.com/mhminhas/thinklab/internal/observability/metrics"
	"github.com/mhminhas/thinklab/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Reserve debits the cost from the account and opens a Reserved record
// in a single transaction. The conditional balance update is the only
// admission check, so concurrent reservations can never overspend.
func (s *Service) Reserve(ctx context.Context, accountID snowflake.ID, kind string, cost int64, input datatypes.JSON) (*ledgerdomain.ActionRecord, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, ledgerdomain.ErrInvalidAction
	}
	if cost < 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	record := ledgerdomain.ActionRecord{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Kind:      kind,
		Cost:      cost,
		Status:    ledgerdomain.StatusReserved,
		Input:     input,
		CreatedAt: s.clock.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE accounts
			SET balance = balance - ?, updated_at = ?
			WHERE id = ? AND active = ? AND balance >= ?`,
			cost, record.CreatedAt, accountID, true, cost,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.classifyReserveFailure(ctx, tx, accountID)
		}

		return tx.WithContext(ctx).Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordReservation(ctx, kind)
	return &record, nil
}

// classifyReserveFailure distinguishes a missing or inactive account from
// an insufficient balance after the conditional debit matched no row.
func (s *Service) classifyReserveFailure(ctx context.Context, tx *gorm.DB, accountID snowflake.ID) error {
	var row struct {
		Active bool
	}
	err := tx.WithContext(ctx).
		Table("accounts").
		Select("active").
		Where("id = ?", accountID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgerdomain.ErrAccountNotFound
		}
		return err
	}
	if !row.Active {
		return ledgerdomain.ErrAccountNotFound
	}
	return ledgerdomain.ErrInsufficientBalance
}

// Commit resolves a Reserved record to Committed, attaching the provider
// output and optional call metadata. The held credits stay spent.
// Committing an already resolved record fails.
func (s *Service) Commit(ctx context.Context, recordID snowflake.ID, output, metadata datatypes.JSON) (*ledgerdomain.ActionRecord, error) {
	if recordID == 0 {
		return nil, ledgerdomain.ErrInvalidAction
	}

	var record ledgerdomain.ActionRecord
	now := s.clock.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE action_records
			SET status = ?, output = ?, metadata = COALESCE(?, metadata), resolved_at = ?
			WHERE id = ? AND status = ?`,
			ledgerdomain.StatusCommitted, output, metadata, now,
			recordID, ledgerdomain.StatusReserved,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.classifyResolveFailure(ctx, tx, recordID)
		}
		return tx.WithContext(ctx).First(&record, "id = ?", recordID).Error
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordResolution(ctx, record.Kind, string(ledgerdomain.StatusCommitted))
	s.obsMetrics.RecordCreditsSpent(ctx, record.Kind, record.Cost)
	return &record, nil
}

// Refund resolves a Reserved record to Refunded and returns the held
// credits to the account in the same transaction. Sweep-initiated refunds
// treat an already resolved record as a no-op so the recovery pass stays
// idempotent; caller-initiated refunds on a resolved record fail.
func (s *Service) Refund(ctx context.Context, recordID snowflake.ID, initiator ledgerdomain.RefundInitiator, reason string) (*ledgerdomain.ActionRecord, error) {
	if recordID == 0 {
		return nil, ledgerdomain.ErrInvalidAction
	}

	var record ledgerdomain.ActionRecord
	refunded := false
	now := s.clock.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE action_records
			SET status = ?, resolved_at = ?, last_error = ?, last_error_at = ?
			WHERE id = ? AND status = ?`,
			ledgerdomain.StatusRefunded, now, nullableString(reason), nullableTime(reason, now),
			recordID, ledgerdomain.StatusReserved,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			err := tx.WithContext(ctx).First(&record, "id = ?", recordID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ledgerdomain.ErrActionNotFound
				}
				return err
			}
			if initiator == ledgerdomain.RefundInitiatorSweep && record.Status.Terminal() {
				return nil
			}
			return ledgerdomain.ErrInvalidStateTransition
		}
		refunded = true

		if err := tx.WithContext(ctx).First(&record, "id = ?", recordID).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			record.Cost, now, record.AccountID,
		).Error
	})
	if err != nil {
		return nil, err
	}

	if refunded {
		s.obsMetrics.RecordResolution(ctx, record.Kind, string(ledgerdomain.StatusRefunded))
		if initiator == ledgerdomain.RefundInitiatorSweep {
			s.obsMetrics.RecordSweepRefund(ctx, record.Kind)
		}
	}
	return &record, nil
}

func (s *Service) classifyResolveFailure(ctx context.Context, tx *gorm.DB, recordID snowflake.ID) error {
	var record ledgerdomain.ActionRecord
	err := tx.WithContext(ctx).First(&record, "id = ?", recordID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgerdomain.ErrActionNotFound
		}
		return err
	}
	return ledgerdomain.ErrInvalidStateTransition
}

// Grant appends a credit grant row and increments the account balance.
// Grants are the only way credits enter the system.
func (s *Service) Grant(ctx context.Context, accountID snowflake.ID, amount int64, reason string) error {
	if accountID == 0 {
		return ledgerdomain.ErrInvalidAccount
	}
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	grant := ledgerdomain.CreditGrant{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Amount:    amount,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: now,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			amount, now, accountID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrAccountNotFound
		}
		return tx.WithContext(ctx).Create(&grant).Error
	})
}

func (s *Service) Balance(ctx context.Context, accountID snowflake.ID) (int64, error) {
	if accountID == 0 {
		return 0, ledgerdomain.ErrInvalidAccount
	}

	var row struct {
		Balance int64
	}
	err := s.db.WithContext(ctx).
		Table("accounts").
		Select("balance").
		Where("id = ?", accountID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ledgerdomain.ErrAccountNotFound
		}
		return 0, err
	}
	return row.Balance, nil
}

func (s *Service) Get(ctx context.Context, recordID snowflake.ID) (*ledgerdomain.ActionRecord, error) {
	if recordID == 0 {
		return nil, ledgerdomain.ErrInvalidAction
	}

	var record ledgerdomain.ActionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", recordID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrActionNotFound
		}
		return nil, err
	}
	return &record, nil
}

// History lists an account's action records newest first with cursor pagination.
func (s *Service) History(ctx context.Context, accountID snowflake.ID, page pagination.Pagination) ([]ledgerdomain.ActionRecord, pagination.PageInfo, error) {
	if accountID == 0 {
		return nil, pagination.PageInfo{}, ledgerdomain.ErrInvalidAccount
	}

	size := page.PageSize
	if size <= 0 {
		size = 20
	}
	query := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(size + 1)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, ledgerdomain.ErrInvalidCursor
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.PageInfo{}, ledgerdomain.ErrInvalidCursor
		}
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			createdAt, createdAt, cursor.ID,
		)
	}

	var records []ledgerdomain.ActionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}

	info := pagination.PageInfo{}
	if len(records) > size {
		records = records[:size]
		last := records[len(records)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		info.HasMore = true
		info.NextPageToken = token
	}
	return records, info, nil
}

// Stale lists Reserved records created before the cutoff, oldest first.
func (s *Service) Stale(ctx context.Context, cutoff time.Time, limit int) ([]ledgerdomain.ActionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []ledgerdomain.ActionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", ledgerdomain.StatusReserved, cutoff.UTC()).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RecordFailure annotates a still-Reserved record with the latest provider
// error so the sweep can surface why a hold went stale.
func (s *Service) RecordFailure(ctx context.Context, recordID snowflake.ID, cause string) error {
	if recordID == 0 {
		return ledgerdomain.ErrInvalidAction
	}
	cause = strings.TrimSpace(cause)
	if cause == "" {
		return nil
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE action_records
		SET last_error = ?, last_error_at = ?
		WHERE id = ? AND status = ?`,
		cause, s.clock.Now().UTC(), recordID, ledgerdomain.StatusReserved,
	).Error
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func nullableTime(value string, at time.Time) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &at
}
