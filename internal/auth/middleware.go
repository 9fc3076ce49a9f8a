package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	sharedHttp "github.com/hezron-sketch/cafe-backend/pkg/http"
)

const actorKey = "actor"

// Middleware rejects requests without a valid bearer token and stores
// the caller in the request locals.
func Middleware(verifier *JWTVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return sharedHttp.UnauthorizedResponse(c, "Missing bearer token")
		}

		actor, err := verifier.Verify(tokenStr)
		if err != nil {
			return sharedHttp.UnauthorizedResponse(c, domain.PublicMessage(err, "Invalid token"))
		}

		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// ActorFrom returns the authenticated caller set by Middleware.
func ActorFrom(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
