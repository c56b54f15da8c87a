package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
	"github.com/mhminhas/thinklab/internal/apikey/repository"
	"github.com/mhminhas/thinklab/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type keyFixture struct {
	db        *gorm.DB
	svc       apikeydomain.Service
	clock     *clock.FakeClock
	accountID snowflake.ID
}

func newKeyFixture(t *testing.T) *keyFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&apikeydomain.APIKey{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})

	account := accountdomain.Account{
		ID: node.Generate(), Email: "keys@test.dev", Role: accountdomain.RoleUser, Active: true,
	}
	require.NoError(t, db.Create(&account).Error)

	return &keyFixture{db: db, svc: svc, clock: fake, accountID: account.ID}
}

func TestCreateReturnsRawKeyOnce(t *testing.T) {
	f := newKeyFixture(t)

	secret, err := f.svc.Create(context.Background(), f.accountID, apikeydomain.CreateRequest{Name: "ci"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret.APIKey, "tk_"))

	// Only the hash is persisted.
	var stored apikeydomain.APIKey
	require.NoError(t, f.db.First(&stored, "id = ?", secret.ID).Error)
	assert.NotEqual(t, secret.APIKey, stored.KeyHash)
	assert.Equal(t, apikeydomain.HashAPIKey(secret.APIKey), stored.KeyHash)

	keys, err := f.svc.List(context.Background(), f.accountID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ci", keys[0].Name)
}

func TestCreateRejectsBlankName(t *testing.T) {
	f := newKeyFixture(t)

	_, err := f.svc.Create(context.Background(), f.accountID, apikeydomain.CreateRequest{Name: "   "})
	require.ErrorIs(t, err, apikeydomain.ErrInvalidName)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	f := newKeyFixture(t)

	secret, err := f.svc.Create(context.Background(), f.accountID, apikeydomain.CreateRequest{Name: "default"})
	require.NoError(t, err)

	identity, err := f.svc.Authenticate(context.Background(), secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, f.accountID, identity.AccountID)
	assert.Equal(t, secret.ID, identity.KeyID)
	assert.Equal(t, "user", identity.Role)

	// Authentication stamps last_used_at.
	var stored apikeydomain.APIKey
	require.NoError(t, f.db.First(&stored, "id = ?", secret.ID).Error)
	require.NotNil(t, stored.LastUsedAt)
}

func TestAuthenticateRejectsUnknownKey(t *testing.T) {
	f := newKeyFixture(t)

	_, err := f.svc.Authenticate(context.Background(), "tk_does_not_exist")
	require.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	_, err = f.svc.Authenticate(context.Background(), "sk_wrong_prefix")
	require.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	f := newKeyFixture(t)

	secret, err := f.svc.Create(context.Background(), f.accountID, apikeydomain.CreateRequest{Name: "old"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(context.Background(), f.accountID, secret.ID))

	_, err = f.svc.Authenticate(context.Background(), secret.APIKey)
	require.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	// Revoking twice reports not found.
	err = f.svc.Revoke(context.Background(), f.accountID, secret.ID)
	require.ErrorIs(t, err, apikeydomain.ErrNotFound)
}

func TestAuthenticateRejectsInactiveAccount(t *testing.T) {
	f := newKeyFixture(t)

	secret, err := f.svc.Create(context.Background(), f.accountID, apikeydomain.CreateRequest{Name: "default"})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE accounts SET active = false WHERE id = ?`, f.accountID).Error)

	_, err = f.svc.Authenticate(context.Background(), secret.APIKey)
	require.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
}

func TestRevokeScopedToOwner(t *testing.T) {
	f := newKeyFixture(t)

	secret, err := f.svc.Create(context.Background(), f.accountID, apikeydomain.CreateRequest{Name: "default"})
	require.NoError(t, err)

	err = f.svc.Revoke(context.Background(), snowflake.ID(999), secret.ID)
	require.ErrorIs(t, err, apikeydomain.ErrNotFound)

	// Still valid for the real owner.
	_, err = f.svc.Authenticate(context.Background(), secret.APIKey)
	require.NoError(t, err)
}
