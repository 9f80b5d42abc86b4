package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"markprompt/internal/model"
	"markprompt/internal/pkg/jwtutil"
	"markprompt/internal/transport/http/response"
)

const (
	ContextProjectIDKey  = "project_id"
	ContextTeamIDKey     = "team_id"
	ContextTierKey       = "tier"
	ContextFirstPartyKey = "first_party"
)

// AuthProjectToken validates the project-scoped bearer token and stores the
// caller's project, team, tier and first-party flag on the request context.
func AuthProjectToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextProjectIDKey, claims.ProjectID)
		c.Set(ContextTeamIDKey, claims.TeamID)
		c.Set(ContextTierKey, model.Tier(claims.Tier))
		c.Set(ContextFirstPartyKey, claims.FirstParty)
		c.Next()
	}
}

// ProjectID returns the authenticated project id, or 0 when unauthenticated.
func ProjectID(c *gin.Context) uint {
	id, _ := c.Get(ContextProjectIDKey)
	projectID, _ := id.(uint)
	return projectID
}

// TeamID returns the authenticated team id, or 0 when unauthenticated.
func TeamID(c *gin.Context) uint {
	id, _ := c.Get(ContextTeamIDKey)
	teamID, _ := id.(uint)
	return teamID
}

// CallerTier returns the caller's subscription tier.
func CallerTier(c *gin.Context) model.Tier {
	t, _ := c.Get(ContextTierKey)
	tier, _ := t.(model.Tier)
	return tier
}

// IsFirstParty reports whether the token was issued for the product's own
// client rather than a customer integration.
func IsFirstParty(c *gin.Context) bool {
	fp, _ := c.Get(ContextFirstPartyKey)
	firstParty, _ := fp.(bool)
	return firstParty
}
