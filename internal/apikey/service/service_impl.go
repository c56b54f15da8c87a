package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
	"github.com/mhminhas/thinklab/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "tk_"
	apiKeySecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  apikeydomain.Repository
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, accountID snowflake.ID) ([]apikeydomain.Response, error) {
	keys, err := s.repo.List(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(keys))
	for i := range keys {
		key := &keys[i]
		resp = append(resp, apikeydomain.Response{
			ID:         key.ID,
			Name:       key.Name,
			Prefix:     key.Prefix,
			CreatedAt:  key.CreatedAt,
			LastUsedAt: key.LastUsedAt,
			RevokedAt:  key.RevokedAt,
		})
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, accountID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	plain, hash, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Name:      name,
		KeyHash:   hash,
		Prefix:    plain[:len(apiKeyPrefix)+6],
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	// The raw key is returned exactly once and never stored.
	return &apikeydomain.SecretResponse{ID: key.ID, Name: key.Name, APIKey: plain}, nil
}

func (s *Service) Revoke(ctx context.Context, accountID, keyID snowflake.ID) error {
	affected, err := s.repo.Revoke(ctx, s.db, accountID, keyID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return apikeydomain.ErrNotFound
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, apiKeyPrefix) {
		return nil, apikeydomain.ErrUnauthorized
	}

	key, err := s.repo.FindByHash(ctx, s.db, apikeydomain.HashAPIKey(raw))
	if err != nil {
		return nil, err
	}
	if key == nil || key.RevokedAt != nil {
		return nil, apikeydomain.ErrUnauthorized
	}

	var account accountdomain.Account
	err = s.db.WithContext(ctx).First(&account, "id = ?", key.AccountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apikeydomain.ErrUnauthorized
		}
		return nil, err
	}
	if !account.Active {
		return nil, apikeydomain.ErrUnauthorized
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, s.clock.Now().UTC()); err != nil {
		s.log.Warn("failed to touch api key", zap.String("key_id", key.ID.String()), zap.Error(err))
	}

	return &apikeydomain.Identity{
		KeyID:     key.ID,
		AccountID: key.AccountID,
		Role:      string(account.Role),
	}, nil
}

func generateAPIKey() (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}
	plain := apiKeyPrefix + hex.EncodeToString(secret)
	return plain, apikeydomain.HashAPIKey(plain), nil
}
