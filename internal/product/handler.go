package product

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/recently-viewed/internal/recent"
)

// ViewRecorder is notified whenever a product detail is served.
type ViewRecorder interface {
	RecordView(c *fiber.Ctx, p *recent.Product)
}

type Handler struct {
	service  *Service
	recorder ViewRecorder
}

// NewHandler builds the catalog handler. recorder may be nil.
func NewHandler(service *Service, recorder ViewRecorder) *Handler {
	return &Handler{service: service, recorder: recorder}
}

func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/api/v1/products", h.getProducts)
	app.Get("/api/v1/product/path/:path", h.getProductByPath)
	app.Get("/api/v1/product/:id<[0-9]+>", h.getProduct)

	// dev-only endpoint to reset products, enabled when ALLOW_RESET_PRODUCTS=1
	app.Post("/dev/reset-products", h.resetProducts)
}

// getProducts lists the catalog, or only the products named by ?ids=1,2,3
// in that order.
func (h *Handler) getProducts(c *fiber.Ctx) error {
	raw := c.Query("ids")
	if raw == "" {
		return c.JSON(h.service.List())
	}

	ids := make([]int, 0)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid id " + strconv.Quote(part)})
		}
		ids = append(ids, id)
	}
	products, err := h.service.ListByIDs(ids)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(products)
}

func (h *Handler) getProduct(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	p, err := h.service.GetByID(id)
	return h.serveDetail(c, p, err)
}

func (h *Handler) getProductByPath(c *fiber.Ctx) error {
	p, err := h.service.GetByPath(c.Params("path"))
	return h.serveDetail(c, p, err)
}

func (h *Handler) serveDetail(c *fiber.Ctx, p Product, err error) error {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "product not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	if h.recorder != nil {
		h.recorder.RecordView(c, p.Viewed())
	}
	return c.JSON(p)
}

// resetProducts replaces the catalog with the request body, or with
// SampleProducts when the body is not a product list. An empty list clears it.
func (h *Handler) resetProducts(c *fiber.Ctx) error {
	if os.Getenv("ALLOW_RESET_PRODUCTS") != "1" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "reset not allowed"})
	}

	var products []Product
	if err := c.BodyParser(&products); err != nil {
		products = SampleProducts()
	}

	if err := h.service.ResetProducts(products); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(products)
}

// SampleProducts is the default catalog used for local runs.
func SampleProducts() []Product {
	return []Product{
		{Name: "Cat Scratcher Bed", ImageURL: ptrString("/shopping/cat-bed.svg"), Price: 840, Path: "cat-scratcher-bed"},
		{Name: "Double Food Bowl", ImageURL: ptrString("/shopping/double-bowl.svg"), Price: 420, Path: "double-food-bowl"},
		{Name: "Cat Sweater", ImageURL: ptrString("/shopping/cat-sweater.svg"), Price: 260, Path: "cat-sweater"},
		{Name: "Cheese Cat House", Price: 399, Path: "cheese-cat-house"},
	}
}

func ptrString(s string) *string { return &s }
