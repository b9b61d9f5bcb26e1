package middleware

// identity.go holds the context accessors shared by the middleware and the
// handlers.  The session middleware stores a service.Actor under actorKey;
// requests without a valid session carry the zero Actor.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/service"
)

const actorKey = "actor"

// ActorFrom returns the caller stored by Session, or the anonymous actor.
func ActorFrom(c echo.Context) service.Actor {
	if a, ok := c.Get(actorKey).(service.Actor); ok {
		return a
	}
	return service.Actor{}
}

// SetActor stores the caller on the context.
func SetActor(c echo.Context, a service.Actor) { c.Set(actorKey, a) }

// currentUserID is used to build per-user rate limit keys.
func currentUserID(c echo.Context) string {
	if a := ActorFrom(c); a.Authenticated() {
		return strconv.FormatUint(a.UserID, 10)
	}
	return "anon"
}
