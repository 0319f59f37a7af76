package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers based on endpoint. Session
// responses are never cacheable, whatever the method; other endpoints only
// get a header on GET. Handlers that set their own header win.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}
		if isSessionPath(c.Path()) {
			c.Set(fiber.HeaderCacheControl, noStore)
			return err
		}
		if c.Method() != fiber.MethodGet {
			return err
		}

		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

const noStore = "private, no-store"

func isSessionPath(path string) bool {
	return strings.HasPrefix(path, "/v1/browser") || strings.HasPrefix(path, "/v1/registrations")
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=10"

	case path == "/metrics":
		return "no-cache"

	// Session state changes under the client.
	case isSessionPath(path):
		return noStore

	case path == "/v1/states" || strings.HasPrefix(path, "/v1/states/"):
		return "public, max-age=86400"

	case path == "/v1/items":
		return "public, max-age=600"

	// The registry is the source of truth for points.
	case strings.HasPrefix(path, "/v1/points"):
		return "public, max-age=30"

	case strings.HasPrefix(path, "/v1/"):
		return "public, max-age=60"
	}
	return ""
}
