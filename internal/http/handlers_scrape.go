package http

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"fathom/internal/model"
	"fathom/internal/report"
	"fathom/internal/urlnorm"
)

// deepScrapeHandler runs a crawl inline and returns the aggregated
// result. Results are cached under the fingerprint of the request path
// with query, so repeated identical requests are served from the store.
func deepScrapeHandler(c *fiber.Ctx) error {
	d := deps(c)
	params, err := parseCrawlParams(c.Queries())
	if err != nil {
		return badRequest(c, err)
	}

	rid := urlnorm.Fingerprint(c.OriginalURL())
	if params.Cache {
		if raw, err := d.Store.Load(c.Context(), rid); err == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(raw)
		}
	}

	_, raw, err := runDeepScrape(c, d, params, rid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// deepScrapeMarkdownHandler is the same crawl presented as one
// consolidated Markdown document.
func deepScrapeMarkdownHandler(c *fiber.Ctx) error {
	d := deps(c)
	params, err := parseCrawlParams(c.Queries())
	if err != nil {
		return badRequest(c, err)
	}

	rid := urlnorm.Fingerprint(c.OriginalURL())
	var result *model.CrawlResult
	if params.Cache {
		if raw, err := d.Store.Load(c.Context(), rid); err == nil {
			var cached model.CrawlResult
			if json.Unmarshal(raw, &cached) == nil {
				result = &cached
			}
		}
	}
	if result == nil {
		if result, _, err = runDeepScrape(c, d, params, rid); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(fiber.Map{
		"id":            result.ID,
		"base_url":      result.BaseURL,
		"domain":        result.Domain,
		"date":          result.Date,
		"total_pages":   result.TotalPages,
		"markdown":      report.Consolidated(result),
		"resultUri":     result.ResultURI,
		"screenshotUri": result.ScreenshotURI,
	})
}

// runDeepScrape executes the crawl while holding one browser-context
// slot, then persists the result and its screenshot. The crawl runs on a
// background context so a dropped client connection cannot abort it.
func runDeepScrape(c *fiber.Ctx, d *Deps, params model.CrawlParams, rid string) (*model.CrawlResult, []byte, error) {
	ctx := context.Background()

	// A client that gives up while queued for a slot frees it; once the
	// crawl starts it runs to completion regardless.
	if err := acquireSlot(c.Context(), d.Semaphore); err != nil {
		return nil, nil, err
	}
	result, screenshot, err := d.Crawler.Crawl(ctx, params, nil)
	<-d.Semaphore
	if err != nil {
		return nil, nil, err
	}

	result.ID = rid
	result.Query = queryDict(c)
	result.ResultURI = c.BaseURL() + "/result/" + rid
	if screenshot != nil {
		result.ScreenshotURI = c.BaseURL() + "/screenshot/" + rid
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Store.Store(ctx, rid, raw); err != nil {
		return nil, nil, err
	}
	if screenshot != nil {
		if err := d.Store.Files().StoreScreenshot(rid, screenshot); err != nil {
			log.Error().Err(err).Str("fingerprint", rid).Msg("screenshot store failed")
		}
	}
	return result, raw, nil
}

func queryDict(c *fiber.Ctx) map[string][]string {
	q := map[string][]string{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		q[k] = append(q[k], string(value))
	})
	return q
}
