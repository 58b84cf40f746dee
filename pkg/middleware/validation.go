package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dialworks/leadagent/pkg/errors"
	"github.com/dialworks/leadagent/pkg/utils"
)

// ValidatePhoneParam canonicalizes a phone path parameter, rejecting numbers
// that have no +1XXXXXXXXXX canonical form.
func ValidatePhoneParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := c.Param(paramName)
		if phone == "" {
			errors.BadRequest(c, paramName+" parameter is required")
			c.Abort()
			return
		}

		canonical := utils.CanonicalPhone(phone)
		if canonical == "" {
			errors.BadRequest(c, "invalid "+paramName+": must be a 10-digit or 11-digit US number")
			c.Abort()
			return
		}

		c.Set(paramName, canonical)
		c.Next()
	}
}

// ValidateStreamIDParam rejects empty or suspicious stream identifiers
func ValidateStreamIDParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param(paramName)
		if id == "" || strings.ContainsAny(id, "/\\..") {
			errors.BadRequest(c, "invalid "+paramName+" parameter")
			c.Abort()
			return
		}
		c.Set(paramName, id)
		c.Next()
	}
}

// SanitizeString removes potentially dangerous characters from strings
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")
	// Trim whitespace
	s = strings.TrimSpace(s)
	return s
}
