package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
)

func (s *Server) ListAPIKeys(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req apikeydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	key, err := s.apiKeySvc.Create(c.Request.Context(), accountID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, key)
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keyID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.apiKeySvc.Revoke(c.Request.Context(), accountID, keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
