package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mhminhas/thinklab/internal/accountcontext"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
	"github.com/mhminhas/thinklab/internal/gateway"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	"github.com/mhminhas/thinklab/internal/pricing"
	"github.com/mhminhas/thinklab/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPIKeyService struct {
	identity *apikeydomain.Identity
	err      error
	lastRaw  string
}

func (f *fakeAPIKeyService) List(context.Context, snowflake.ID) ([]apikeydomain.Response, error) {
	return nil, nil
}

func (f *fakeAPIKeyService) Create(context.Context, snowflake.ID, apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	return nil, nil
}

func (f *fakeAPIKeyService) Revoke(context.Context, snowflake.ID, snowflake.ID) error {
	return nil
}

func (f *fakeAPIKeyService) Authenticate(_ context.Context, raw string) (*apikeydomain.Identity, error) {
	f.lastRaw = raw
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func newTestRouter(srv *Server, register func(*gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	register(router)
	srv.engine = router
	return router
}

func TestAPIKeyRequiredRejectsMissingHeader(t *testing.T) {
	keys := &fakeAPIKeyService{}
	srv := &Server{apiKeySvc: keys}

	router := newTestRouter(srv, func(r *gin.Engine) {
		r.GET("/v1/account", srv.APIKeyRequired(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/account", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, keys.lastRaw)
}

func TestAPIKeyRequiredSetsIdentity(t *testing.T) {
	accountID := snowflake.ID(42)
	keys := &fakeAPIKeyService{identity: &apikeydomain.Identity{
		KeyID:     snowflake.ID(7),
		AccountID: accountID,
		Role:      "user",
	}}
	srv := &Server{apiKeySvc: keys}

	var gotID int64
	var gotRole string
	router := newTestRouter(srv, func(r *gin.Engine) {
		r.GET("/v1/account", srv.APIKeyRequired(), func(c *gin.Context) {
			gotID, _ = accountcontext.AccountIDFromContext(c.Request.Context())
			gotRole, _ = accountcontext.RoleFromContext(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/account", nil)
	req.Header.Set("Authorization", "Bearer tk_test_key")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "tk_test_key", keys.lastRaw)
	assert.Equal(t, int64(accountID), gotID)
	assert.Equal(t, "user", gotRole)
}

func TestAPIKeyRequiredRejectsRevokedKey(t *testing.T) {
	keys := &fakeAPIKeyService{err: apikeydomain.ErrUnauthorized}
	srv := &Server{apiKeySvc: keys}

	router := newTestRouter(srv, func(r *gin.Engine) {
		r.GET("/v1/account", srv.APIKeyRequired(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/account", nil)
	req.Header.Set("Authorization", "Bearer tk_revoked")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminRequired(t *testing.T) {
	srv := &Server{}

	router := newTestRouter(srv, func(r *gin.Engine) {
		r.GET("/admin/overview", withIdentity(99, "user"), srv.AdminRequired(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		r.GET("/admin/overview2", withIdentity(99, "admin"), srv.AdminRequired(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/overview", nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/overview2", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

// withIdentity stands in for APIKeyRequired in handler tests.
func withIdentity(accountID int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := accountcontext.WithAccountID(c.Request.Context(), accountID)
		ctx = accountcontext.WithRole(ctx, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func TestCreateActionRejectsInvalidBody(t *testing.T) {
	srv := &Server{}

	router := newTestRouter(srv, func(r *gin.Engine) {
		r.POST("/v1/actions", withIdentity(99, "user"), srv.CreateAction)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString(`{"kind": 12}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateActionRejectsMissingKind(t *testing.T) {
	srv := &Server{}

	router := newTestRouter(srv, func(r *gin.Engine) {
		r.POST("/v1/actions", withIdentity(99, "user"), srv.CreateAction)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString(`{"input":{}}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetPricingListsAllKinds(t *testing.T) {
	srv := &Server{pricingTable: pricing.NewTable()}

	router := newTestRouter(srv, func(r *gin.Engine) {
		r.GET("/v1/pricing", srv.GetPricing)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/pricing", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	for _, kind := range pricing.NewTable().Kinds() {
		assert.Contains(t, resp.Body.String(), string(kind))
	}
}

func TestMapErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"unknown kind", pricing.ErrUnknownActionKind, http.StatusBadRequest, "validation_error"},
		{"bad page token", ledgerdomain.ErrInvalidCursor, http.StatusBadRequest, "validation_error"},
		{"insufficient balance", ledgerdomain.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
		{"provider failure", provider.ErrProviderFailure, http.StatusBadGateway, "provider_failure"},
		{"reconciliation required", gateway.ErrReconciliationRequired, http.StatusBadGateway, "reconciliation_required"},
		{"invalid transition", ledgerdomain.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
		{"action not found", ledgerdomain.ErrActionNotFound, http.StatusNotFound, "not_found"},
		{"unauthorized", apikeydomain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.typ, payload.Type)
		})
	}
}
