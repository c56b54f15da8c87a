package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type ActionRequest struct {
	Kind  string          `json:"kind"`
	Input json.RawMessage `json:"input"`
}

func (s *Server) CreateAction(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Kind) == "" {
		AbortWithError(c, newValidationError("kind", "invalid_kind", "kind is required"))
		return
	}
	c.Set("action_kind", strings.ToLower(strings.TrimSpace(req.Kind)))

	record, err := s.gatewaySvc.Perform(c.Request.Context(), accountID, req.Kind, datatypes.JSON(req.Input))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) GetAction(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	recordID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.ledgerSvc.Get(c.Request.Context(), recordID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record.AccountID != accountID {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) GetPricing(c *gin.Context) {
	kinds := s.pricingTable.Kinds()
	prices := make([]gin.H, 0, len(kinds))
	for _, kind := range kinds {
		cost, err := s.pricingTable.Cost(kind)
		if err != nil {
			continue
		}
		prices = append(prices, gin.H{"kind": kind, "cost": cost})
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}
