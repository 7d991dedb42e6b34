package http

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"fathom/internal/extract"
	"fathom/internal/model"
	"fathom/internal/renderer"
	"fathom/internal/urlnorm"
)

// articleHandler renders a single page and extracts its readable
// article. Unlike the crawler, an unparseable page here is a client
// error: the endpoint's whole purpose is the article.
func articleHandler(c *fiber.Ctx) error {
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

	ctx := context.Background()
	if err := acquireSlot(c.Context(), d.Semaphore); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: err.Error()})
	}
	pageURL, pageHTML, screenshot, rawArticle, err := renderArticle(ctx, d, params)
	<-d.Semaphore
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	article, err := extract.DecodeArticle(rawArticle)
	if err != nil {
		var pe *extract.ParseError
		if errors.As(err, &pe) || errors.Is(err, extract.ErrNoArticle) {
			return badRequest(c, err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	content := article.Content
	if article.Title != "" && content != "" {
		content = extract.ImproveContent(article.Title, content)
	}
	textContent := extract.ImproveTextContent(article.TextContent)
	length := len(textContent) - strings.Count(textContent, "\n")

	resp := fiber.Map{
		"id":            rid,
		"url":           pageURL,
		"domain":        urlnorm.RegisteredDomain(pageURL),
		"date":          time.Now().UTC().Format(time.RFC3339),
		"query":         queryDict(c),
		"meta":          extract.SocialMetaTags(pageHTML),
		"resultUri":     c.BaseURL() + "/result/" + rid,
		"title":         article.Title,
		"byline":        article.Byline,
		"dir":           article.Dir,
		"content":       content,
		"textContent":   textContent,
		"excerpt":       article.Excerpt,
		"lang":          article.Lang,
		"length":        length,
		"siteName":      article.SiteName,
		"publishedTime": article.PublishedTime,
	}
	if screenshot != nil {
		resp["screenshotUri"] = c.BaseURL() + "/screenshot/" + rid
	}
	if c.QueryBool("full-content") {
		full, err := renderer.FullMarkdown(pageURL, pageHTML)
		if err != nil {
			log.Error().Err(err).Str("url", pageURL).Msg("full content conversion failed")
		} else {
			resp["fullContent"] = full
		}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := d.Store.Store(ctx, rid, raw); err != nil {
		log.Error().Err(err).Str("fingerprint", rid).Msg("article store failed")
	}
	if screenshot != nil {
		if err := d.Store.Files().StoreScreenshot(rid, screenshot); err != nil {
			log.Error().Err(err).Str("fingerprint", rid).Msg("screenshot store failed")
		}
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

func renderArticle(ctx context.Context, d *Deps, params model.CrawlParams) (pageURL, pageHTML string, screenshot []byte, rawArticle json.RawMessage, err error) {
	page, err := d.Renderer.Render(ctx, params.URL, params.Render, []string{d.Scripts.Readability})
	if err != nil {
		return "", "", nil, nil, err
	}
	defer page.Close()

	pageURL = page.URL()
	if pageHTML, err = page.HTML(); err != nil {
		return "", "", nil, nil, err
	}
	if params.Screenshot {
		if screenshot, err = page.Screenshot(); err != nil {
			log.Error().Err(err).Str("url", params.URL).Msg("screenshot failed")
			screenshot = nil
		}
	}
	rawArticle, err = page.Evaluate(d.Scripts.ArticleWith(params.Readability))
	if err != nil {
		return "", "", nil, nil, err
	}
	return pageURL, pageHTML, screenshot, rawArticle, nil
}
