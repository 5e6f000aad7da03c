package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxAccountClaims = "stash_account_claims"

// RequireAccount returns a Gin middleware that enforces a valid Bearer
// account token.
//
// On success it injects the *AccountClaims into the context under the
// "stash_account_claims" key.
func RequireAccount(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxAccountClaims, claims)
		c.Next()
	}
}

// AccountFromCtx retrieves the authenticated account identity injected by
// RequireAccount. Returns "" if the request was not authenticated.
func AccountFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxAccountClaims)
	claims, _ := v.(*AccountClaims)
	if claims == nil {
		return ""
	}
	return claims.Account
}
