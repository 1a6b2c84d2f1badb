package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
)

const actorKey = "actor"

// authMiddleware requires a valid bearer access token and stores the actor
func authMiddleware(tokens port.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := tokens.Verify(strings.TrimSpace(token), port.TokenTypeAccess)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(actorKey, entity.Actor{
			UserID:  claims.UserID,
			Role:    claims.Role,
			IsAdmin: claims.IsAdmin || claims.Role == entity.RoleAdmin,
		})
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="procurement"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: msg})
}

// actorFrom returns the authenticated actor, if any
func actorFrom(c *gin.Context) (entity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return entity.Actor{}, false
	}
	actor, ok := v.(entity.Actor)
	return actor, ok
}

func mustActor(c *gin.Context) entity.Actor {
	actor, _ := actorFrom(c)
	return actor
}
