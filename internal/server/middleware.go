package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"github.com/mhminhas/thinklab/internal/accountcontext"
	"github.com/mhminhas/thinklab/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextAccountIDKey = "account_id"
	contextAPIKeyIDKey  = "api_key_id"
	contextRoleKey      = "account_role"
)

// APIKeyRequired authenticates requests with a bearer API key. Account
// identity is derived solely from the api_keys table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := accountcontext.WithAccountID(c.Request.Context(), int64(identity.AccountID))
		ctx = accountcontext.WithRole(ctx, identity.Role)

		c.Set(contextAccountIDKey, int64(identity.AccountID))
		c.Set(contextAPIKeyIDKey, int64(identity.KeyID))
		c.Set(contextRoleKey, identity.Role)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminRequired gates a route to accounts with the admin role. It must
// run after APIKeyRequired.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := accountcontext.RoleFromContext(c.Request.Context())
		if !ok || role != string(accountdomain.RoleAdmin) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// ActionsRateLimit throttles action submissions per account.
func (s *Server) ActionsRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.actionLimiter.Enabled() {
			c.Next()
			return
		}

		accountID, ok := currentAccountID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.actionLimiter.Allow(ctx, accountID)
		if err != nil {
			logger.FromContext(ctx).Warn("action rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("action rate limit exceeded",
				zap.String("endpoint", endpoint),
				zap.String("account_id", accountID.String()),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "account-rate")
			retryAfter := "1"
			if seconds := int(result.RetryAfter.Seconds()); seconds > 0 {
				retryAfter = strconv.Itoa(seconds)
			}
			c.Header("Retry-After", retryAfter)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func currentAccountID(c *gin.Context) (snowflake.ID, bool) {
	accountID, ok := accountcontext.AccountIDFromContext(c.Request.Context())
	if !ok || accountID == 0 {
		return 0, false
	}
	return snowflake.ID(accountID), true
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
