package recent

import (
	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/recently-viewed/internal/identity"
)

// Handler exposes the caller's recently viewed list over HTTP.
type Handler struct {
	registry *Registry
}

func NewHandler(r *Registry) *Handler {
	return &Handler{registry: r}
}

func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/api/v1/recently-viewed", h.list)
	app.Post("/api/v1/recently-viewed", h.record)
	app.Delete("/api/v1/recently-viewed", h.clear)
}

func (h *Handler) list(c *fiber.Ctx) error {
	items := h.registry.For(identity.Owner(c)).RecentlyViewed(c.UserContext())
	return c.JSON(items)
}

// record always answers 204; a bad body is logged by the cache, not reported.
func (h *Handler) record(c *fiber.Ctx) error {
	h.registry.For(identity.Owner(c)).RecordRaw(c.UserContext(), c.Body())
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) clear(c *fiber.Ctx) error {
	if err := h.registry.For(identity.Owner(c)).Clear(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RecordView records p for the owner of c. It lets other handlers, such as
// product detail, feed the list.
func (h *Handler) RecordView(c *fiber.Ctx, p *Product) {
	h.registry.For(identity.Owner(c)).RecordView(c.UserContext(), p)
}
