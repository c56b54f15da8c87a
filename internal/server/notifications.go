package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListNotifications(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	unreadOnly := false
	if raw := strings.TrimSpace(c.Query("unread")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("unread", "invalid_unread", "invalid boolean"))
			return
		}
		unreadOnly = parsed
	}

	notifications, err := s.notificationSvc.List(c.Request.Context(), accountID, unreadOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	notificationID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), accountID, notificationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	updated, err := s.notificationSvc.MarkAllRead(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
