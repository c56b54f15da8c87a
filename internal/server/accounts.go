package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mhminhas/thinklab/pkg/db/pagination"
)

func (s *Server) GetAccount(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	account, err := s.accountSvc.Get(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (s *Server) GetBalance(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) ListHistory(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	records, pageInfo, err := s.ledgerSvc.History(c.Request.Context(), accountID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":   records,
		"page_info": pageInfo,
	})
}
