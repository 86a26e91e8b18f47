package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// identityKey is the gin context key the middleware stores the resolved
// caller under.
const identityKey = "auth.identity"

// Identity is the resolved caller of a protected endpoint. Handlers consume
// this one value and never branch on which credential produced it.
type Identity struct {
	Subject string
	Via     string // "session" or "secret"
}

// IdentityFrom returns the Identity resolved by AdminAuth or SyncAuth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// AdminAuth enforces bearer JWT tokens carrying the admin role.
func AdminAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, signingKey, issuer)
		if !ok {
			return
		}
		if claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Set(identityKey, Identity{Subject: claims.Subject, Via: "session"})
		c.Next()
	}
}

// SyncAuth admits either an admin session or the scheduler's shared secret,
// resolving both to the same Identity.
func SyncAuth(signingKey, issuer, sharedSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader("X-Sync-Secret"); secret != "" {
			if sharedSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(sharedSecret)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid sync secret"})
				return
			}
			c.Set(identityKey, Identity{Subject: "scheduler", Via: "secret"})
			c.Next()
			return
		}
		claims, ok := bearerClaims(c, signingKey, issuer)
		if !ok {
			return
		}
		if claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Set(identityKey, Identity{Subject: claims.Subject, Via: "session"})
		c.Next()
	}
}

func bearerClaims(c *gin.Context, signingKey, issuer string) (Claims, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return Claims{}, false
	}
	tokenStr := strings.TrimSpace(authz[len("bearer "):])
	claims, err := Parse(tokenStr, signingKey, issuer)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return Claims{}, false
	}
	return claims, true
}
