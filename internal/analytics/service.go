package analytics

import (
	"context"

	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service aggregates platform-wide usage and credit figures for the
// admin overview.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("analytics.service"),
	}
}

type Overview struct {
	Accounts        int64       `json:"accounts"`
	ActiveAccounts  int64       `json:"active_accounts"`
	CreditsGranted  int64       `json:"credits_granted"`
	CreditsInWallet int64       `json:"credits_in_wallets"`
	CreditsSpent    int64       `json:"credits_spent"`
	CreditsReserved int64       `json:"credits_reserved"`
	ActionsByKind   []KindCount `json:"actions_by_kind"`
}

type KindCount struct {
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Actions   int64  `json:"actions"`
	TotalCost int64  `json:"total_cost"`
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var overview Overview

	type accountsRow struct {
		Total   int64
		Active  int64
		Balance int64
	}
	var accounts accountsRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(balance), 0) AS balance
		 FROM accounts`,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	overview.Accounts = accounts.Total
	overview.ActiveAccounts = accounts.Active
	overview.CreditsInWallet = accounts.Balance

	var granted int64
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM credit_grants`,
	).Scan(&granted).Error
	if err != nil {
		return nil, err
	}
	overview.CreditsGranted = granted

	type statusRow struct {
		Status    string
		TotalCost int64
	}
	var statuses []statusRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT status, COALESCE(SUM(cost), 0) AS total_cost
		 FROM action_records GROUP BY status`,
	).Scan(&statuses).Error
	if err != nil {
		return nil, err
	}
	for _, row := range statuses {
		switch ledgerdomain.ActionStatus(row.Status) {
		case ledgerdomain.StatusCommitted:
			overview.CreditsSpent = row.TotalCost
		case ledgerdomain.StatusReserved:
			overview.CreditsReserved = row.TotalCost
		}
	}

	var kinds []KindCount
	err = s.db.WithContext(ctx).Raw(
		`SELECT kind, status, COUNT(*) AS actions, COALESCE(SUM(cost), 0) AS total_cost
		 FROM action_records GROUP BY kind, status
		 ORDER BY kind, status`,
	).Scan(&kinds).Error
	if err != nil {
		return nil, err
	}
	overview.ActionsByKind = kinds

	return &overview, nil
}
