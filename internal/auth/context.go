package auth

import "github.com/gin-gonic/gin"

// GetUserID returns the authenticated user's ID or empty string.
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetUserEmail returns the authenticated user's email or empty string.
func GetUserEmail(c *gin.Context) string {
	if v, ok := c.Get("userEmail"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetVerificationLevel returns the authenticated user's verification level,
// or 0 when unauthenticated.
func GetVerificationLevel(c *gin.Context) int {
	if v, ok := c.Get("verificationLevel"); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
