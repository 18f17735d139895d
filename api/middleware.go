package api

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"escrowflow/auth"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// AuthMiddleware guards the protected routes with the bearer token issued at
// login.
type AuthMiddleware struct {
	auth *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{auth: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "missing or invalid token"},
			})
			return
		}
		userID, role, err := am.auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": err.Error()},
			})
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole restricts a route to the listed roles. It runs after
// RequireAuth.
func (am *AuthMiddleware) RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := currentRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": gin.H{"code": "forbidden", "message": "insufficient role"},
		})
	}
}

func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

func currentUserID(c *gin.Context) string {
	id, _ := c.Get(ctxUserID)
	s, _ := id.(string)
	return s
}

func currentRole(c *gin.Context) auth.Role {
	v, _ := c.Get(ctxRole)
	r, _ := v.(auth.Role)
	return r
}

// CORS allows the local frontends during development.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "Idempotency-Key"},
		AllowCredentials: true,
	})
}
