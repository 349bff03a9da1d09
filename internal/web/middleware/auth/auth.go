package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/NeverMind-orz/identity-kit/internal/identity"
	"github.com/NeverMind-orz/identity-kit/internal/session"
	"github.com/NeverMind-orz/identity-kit/internal/tenant"
)

// ClaimsKey is the fiber locals key the verified claims are stored under.
const ClaimsKey = "principal"

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*session.Claims, error)
}

// New creates a Fiber middleware that requires a valid bearer token.
// On success the claims land in the locals and the request context carries
// the tenant and the acting user.
func New(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		c.Locals(ClaimsKey, claims)

		ctx := tenant.WithID(c.UserContext(), claims.TenantID)
		ctx = identity.WithActor(ctx, identity.Actor{
			ID:       claims.Subject,
			Username: claims.Email,
			Roles:    claims.Roles,
		})
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// Claims returns the verified claims stored by the middleware, if any.
func Claims(c *fiber.Ctx) (*session.Claims, bool) {
	claims, ok := c.Locals(ClaimsKey).(*session.Claims)

	return claims, ok
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "

	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	return header[len(prefix):], true
}
