package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

const (
	// ContextKeyEntry is the Gin context key for the entry credential claims.
	ContextKeyEntry = "entry_claims"
)

// RequireEntryCredential validates the exam entry token from the
// Authorization header or the ?token= query param (the WebSocket upgrade
// cannot send headers). When the route carries an :exam_id param the token
// must be bound to that exam.
func RequireEntryCredential(tokenService *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := tokenService.Parse(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, tokenErrCode(err))
			return
		}

		if examID := c.Param("exam_id"); examID != "" && claims.ExamID.String() != examID {
			response.AbortFail(c, http.StatusForbidden, response.ErrTokenMalformed)
			return
		}

		c.Set(ContextKeyEntry, claims)
		c.Next()
	}
}

// GetEntryClaims retrieves the entry credential claims from the Gin context.
func GetEntryClaims(c *gin.Context) *service.EntryClaims {
	val, exists := c.Get(ContextKeyEntry)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.EntryClaims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

func tokenErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return response.ErrTokenExpired
	case errors.Is(err, service.ErrTokenSignatureInvalid):
		return response.ErrTokenSignatureInvalid
	default:
		return response.ErrTokenMalformed
	}
}
