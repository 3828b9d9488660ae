package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"complaint-workflow-service/internal/models"
)

// Context keys set by ActorAuth
const (
	ActorIDKey   = "actor_id"
	ActorRoleKey = "actor_role"
	ActorNameKey = "actor_name"
)

// ActorClaims are the claims issued by the identity provider
type ActorClaims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// ActorAuth identifies the caller. With a secret it requires an HS256
// bearer token; without one it trusts the X-User-* headers set by the gateway.
func ActorAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return headerAuth()
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "bearer token is required")
			return
		}

		claims := &ActorClaims{}
		_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || claims.Subject == "" {
			abortWithError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid token")
			return
		}

		setActor(c, claims.Subject, claims.Role, claims.Name)
		c.Next()
	}
}

func headerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			abortWithError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required")
			return
		}

		role := c.GetHeader("X-User-Role")
		if role == "" {
			role = models.RoleCitizen
		}
		setActor(c, userID, role, c.GetHeader("X-User-Name"))
		c.Next()
	}
}

func setActor(c *gin.Context, id, role, name string) {
	c.Set(ActorIDKey, id)
	c.Set(ActorRoleKey, role)
	c.Set(ActorNameKey, name)
}

// ActorFrom returns the caller identified by ActorAuth
func ActorFrom(c *gin.Context) models.Actor {
	return models.Actor{
		ID:   c.GetString(ActorIDKey),
		Role: c.GetString(ActorRoleKey),
		Name: c.GetString(ActorNameKey),
	}
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if !allowed[c.GetString(ActorRoleKey)] {
			abortWithError(c, http.StatusForbidden, ErrCodeForbidden, "insufficient role for this operation")
			return
		}
		c.Next()
	}
}
