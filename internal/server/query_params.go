package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	value := strings.TrimSpace(c.Param(name))
	parsed, err := snowflake.ParseString(value)
	if err != nil || parsed == 0 {
		return 0, newValidationError(name, "invalid_id", "invalid identifier")
	}
	return parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, newValidationError("id", "invalid_id", "invalid identifier")
	}
	return &parsed, nil
}
