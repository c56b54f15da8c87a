package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
)

type SignupRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type SignupResponse struct {
	Account *accountdomain.Account `json:"account"`
	// APIKey is the raw key, shown exactly once.
	APIKey string `json:"api_key"`
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accountSvc.Provision(c.Request.Context(), accountdomain.ProvisionRequest{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        accountdomain.RoleUser,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	key, err := s.apiKeySvc.Create(c.Request.Context(), account.ID, apikeydomain.CreateRequest{Name: "default"})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SignupResponse{
		Account: account,
		APIKey:  key.APIKey,
	})
}
