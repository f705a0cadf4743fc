package middleware

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding validated token claims.
const ClaimsKey = "reportingClaims"

// ReportingAuthMiddleware protects the query surface with HS256 bearer
// tokens carrying the reporting scope. With an empty secret every request is
// allowed. The token may also be passed as ?token= for websocket clients,
// which cannot set headers.
func ReportingAuthMiddleware(jwtSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.Next()
			return
		}

		token := ""
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := security.ValidateJWT(token, jwtSecret)
		if err != nil {
			logger.System().Warn("Rejected reporting token", "error", err.Error(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if scope, _ := claims["scope"].(string); scope != security.ReportingScope {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token lacks reporting scope"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
