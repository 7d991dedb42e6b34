package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"fathom/internal/cache"
)

// Result IDs are SHA-1 fingerprints: exactly 40 lowercase hex chars.
// Anything else cannot name a stored result and never reaches the tiers.
func validResultID(id string) bool {
	if len(id) != 40 {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}

func resultHandler(c *fiber.Ctx) error {
	d := deps(c)
	id := c.Params("id")
	if !validResultID(id) {
		return notFound(c, "unknown result id")
	}
	raw, err := d.Store.Load(c.Context(), id)
	if errors.Is(err, cache.ErrNotFound) {
		return notFound(c, "unknown result id")
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

func deleteResultHandler(c *fiber.Ctx) error {
	d := deps(c)
	id := c.Params("id")
	if !validResultID(id) || !d.Store.Delete(c.Context(), id) {
		return notFound(c, "unknown result id")
	}
	return c.JSON(fiber.Map{"deleted": true, "id": id})
}

func screenshotHandler(c *fiber.Ctx) error {
	d := deps(c)
	id := c.Params("id")
	if !validResultID(id) {
		return notFound(c, "unknown screenshot id")
	}
	png, err := d.Store.Files().LoadScreenshot(id)
	if errors.Is(err, cache.ErrNotFound) {
		return notFound(c, "unknown screenshot id")
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

func cacheStatsHandler(c *fiber.Ctx) error {
	return c.JSON(deps(c).Store.Stats(c.Context()))
}
