package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"fathom/internal/model"
	"fathom/internal/queue"
	"fathom/internal/urlnorm"
)

// deepScrapeAsyncHandler enqueues a crawl job. A still-cached result for
// the same seed URL short-circuits without touching the queue.
func deepScrapeAsyncHandler(c *fiber.Ctx) error {
	d := deps(c)
	if d.Queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "async scraping requires redis",
		})
	}

	params := model.DefaultCrawlParams()
	if err := c.BodyParser(&params); err != nil {
		return badRequest(c, err)
	}
	if err := params.Validate(); err != nil {
		return badRequest(c, err)
	}

	rid := urlnorm.FingerprintURL(params.URL)
	if params.Cache && d.Store.Exists(c.Context(), rid) {
		return c.JSON(fiber.Map{
			"from_cache": true,
			"result_id":  rid,
			"resultUri":  c.BaseURL() + "/result/" + rid,
		})
	}

	jobID, err := d.Queue.Enqueue(c.Context(), params)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":     jobID,
		"status_url": c.BaseURL() + "/api/deep-scrape/status/" + jobID,
	})
}

func jobStatusHandler(c *fiber.Ctx) error {
	d := deps(c)
	if d.Queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "async scraping requires redis",
		})
	}

	job, err := d.Queue.GetJob(c.Context(), c.Params("job_id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		return notFound(c, "unknown job id")
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	resp := fiber.Map{
		"job_id":     job.JobID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	if job.ResultID != "" {
		resp["result_id"] = job.ResultID
		resp["resultUri"] = c.BaseURL() + "/result/" + job.ResultID
	}
	return c.JSON(resp)
}

func jobProgressHandler(c *fiber.Ctx) error {
	d := deps(c)
	if d.Queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "async scraping requires redis",
		})
	}

	p, err := d.Queue.GetProgress(c.Context(), c.Params("job_id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		return notFound(c, "unknown job id")
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	if p == nil {
		// Queued but not started yet.
		return c.JSON(model.Progress{Status: string(model.StatusPending)})
	}
	return c.JSON(p)
}
