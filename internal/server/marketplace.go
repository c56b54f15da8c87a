package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	marketplacedomain "github.com/mhminhas/thinklab/internal/marketplace/domain"
	notificationdomain "github.com/mhminhas/thinklab/internal/notification/domain"
	"github.com/mhminhas/thinklab/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) ListMarketplaceItems(c *gin.Context) {
	items, err := s.marketplaceSvc.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) PublishMarketplaceItem(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req marketplacedomain.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.marketplaceSvc.Publish(c.Request.Context(), accountID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (s *Server) GetMarketplaceItem(c *gin.Context) {
	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.marketplaceSvc.Get(c.Request.Context(), itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) PurchaseMarketplaceItem(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	purchase, err := s.marketplaceSvc.Purchase(c.Request.Context(), accountID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.notifySale(c, purchase)

	c.JSON(http.StatusOK, purchase)
}

func (s *Server) DelistMarketplaceItem(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.marketplaceSvc.Delist(c.Request.Context(), accountID, itemID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delisted": true})
}

type RateItemRequest struct {
	Score int64 `json:"score"`
}

func (s *Server) RateMarketplaceItem(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req RateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.marketplaceSvc.Rate(c.Request.Context(), accountID, itemID, req.Score)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) ListMarketplacePurchases(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	purchases, err := s.marketplaceSvc.Purchases(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

// notifySale tells the seller their item sold. Failures only log; the
// purchase is already settled.
func (s *Server) notifySale(c *gin.Context, purchase *marketplacedomain.Purchase) {
	ctx := c.Request.Context()

	item, err := s.marketplaceSvc.Get(ctx, purchase.ItemID)
	if err != nil {
		logger.FromContext(ctx).Warn("sale notification lookup failed", zap.Error(err))
		return
	}

	err = s.notificationSvc.Notify(ctx, item.SellerAccountID, notificationdomain.TypeCredit,
		"item sold", item.Title)
	if err != nil {
		logger.FromContext(ctx).Warn("sale notification failed", zap.Error(err))
	}
}
