package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"github.com/mhminhas/thinklab/internal/clock"
	"github.com/mhminhas/thinklab/internal/config"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	"github.com/mhminhas/thinklab/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const signupGrantReason = "signup"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   accountdomain.Repository
	Ledger ledgerdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	cfg    config.Config
	repo   accountdomain.Repository
	ledger ledgerdomain.Service
}

func New(p Params) accountdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("account.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		cfg:    p.Config,
		repo:   p.Repo,
		ledger: p.Ledger,
	}
}

func (s *Service) Provision(ctx context.Context, req accountdomain.ProvisionRequest) (*accountdomain.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, accountdomain.ErrInvalidEmail
	}

	role := req.Role
	if role == "" {
		role = accountdomain.RoleUser
	}

	now := s.clock.Now().UTC()
	account := &accountdomain.Account{
		ID:          s.genID.Generate(),
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        role,
		Balance:     0,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, accountdomain.ErrDuplicateUser
		}
		return nil, err
	}

	if s.cfg.SignupCredits > 0 {
		if err := s.ledger.Grant(ctx, account.ID, s.cfg.SignupCredits, signupGrantReason); err != nil {
			return nil, err
		}
		account.Balance = s.cfg.SignupCredits
	}

	s.log.Info("account provisioned",
		zap.String("account_id", account.ID.String()),
		zap.Int64("signup_credits", s.cfg.SignupCredits),
	)
	return account, nil
}

func (s *Service) Get(ctx context.Context, accountID snowflake.ID) (*accountdomain.Account, error) {
	if accountID == 0 {
		return nil, accountdomain.ErrNotFound
	}
	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}
	return account, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, accountdomain.ErrInvalidEmail
	}
	account, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}
	return account, nil
}

func (s *Service) Deactivate(ctx context.Context, accountID snowflake.ID) error {
	if accountID == 0 {
		return accountdomain.ErrNotFound
	}
	affected, err := s.repo.SetActive(ctx, s.db, accountID, false)
	if err != nil {
		return err
	}
	if affected == 0 {
		return accountdomain.ErrNotFound
	}
	return nil
}
