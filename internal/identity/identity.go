// Package identity works out whose recently viewed list a request belongs to:
// a signed-in user (JWT) or an anonymous device.
package identity

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// DeviceHeader carries the anonymous device id in both directions.
const DeviceHeader = "X-Device-ID"

const deviceLocal = "device_id"

// Middleware validates a bearer token when one is sent. Requests without an
// Authorization header pass through anonymously; a bad token is rejected.
// With an empty secret no token can be trusted, so every request stays
// anonymous and tokens are ignored.
func Middleware(secret string) fiber.Handler {
	if secret == "" {
		log.Warn("identity: JWT_SECRET is empty, user tokens are ignored")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return jwtware.New(jwtware.Config{
		SigningKey: []byte(secret),
		Filter: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderAuthorization) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	})
}

// UserIDFromCtx extracts the user_id claim from the JWT token stored
// in `c.Locals("user")`.
func UserIDFromCtx(c *fiber.Ctx) (int, error) {
	tok, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return 0, fiber.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fiber.ErrUnauthorized
	}
	raw, ok := claims["user_id"]
	if !ok {
		return 0, fiber.ErrUnauthorized
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, fiber.ErrUnauthorized
		}
		return id, nil
	default:
		return 0, fiber.ErrUnauthorized
	}
}

// DeviceID returns the request's device id, minting one (and echoing it in
// the response header) when the client sent none or an invalid one.
func DeviceID(c *fiber.Ctx) string {
	if id, ok := c.Locals(deviceLocal).(string); ok {
		return id
	}
	id := ""
	if u, err := uuid.Parse(c.Get(DeviceHeader)); err == nil {
		id = u.String()
	} else {
		id = uuid.NewString()
	}
	c.Set(DeviceHeader, id)
	c.Locals(deviceLocal, id)
	return id
}

// Owner is the namespace of the request's list: "user:<id>" for a signed-in
// user, "device:<uuid>" otherwise.
func Owner(c *fiber.Ctx) string {
	if id, err := UserIDFromCtx(c); err == nil && id > 0 {
		return "user:" + strconv.Itoa(id)
	}
	return "device:" + DeviceID(c)
}
