package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	notificationdomain "github.com/mhminhas/thinklab/internal/notification/domain"
	"github.com/mhminhas/thinklab/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) GetOverview(c *gin.Context) {
	overview, err := s.analyticsSvc.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

type GrantRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) GrantCredits(c *gin.Context) {
	accountID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount <= 0 {
		AbortWithError(c, ledgerdomain.ErrInvalidAmount)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin_grant"
	}

	if err := s.ledgerSvc.Grant(c.Request.Context(), accountID, req.Amount, reason); err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = s.notificationSvc.Notify(ctx, accountID, notificationdomain.TypeCredit,
		"credits granted", reason)
	if err != nil {
		logger.FromContext(ctx).Warn("grant notification failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"granted": req.Amount})
}

func (s *Server) DeactivateAccount(c *gin.Context) {
	accountID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.accountSvc.Deactivate(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deactivated": true})
}

// RunSweep triggers one reconciliation pass outside the schedule.
func (s *Server) RunSweep(c *gin.Context) {
	if s.reconcilerSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if err := s.reconcilerSvc.RunOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"swept": true})
}
