// Package crawler implements the breadth-first recursive scrape: level
// batching, link discovery, article extraction, and progress reporting.
package crawler

import (
	"context"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fathom/internal/extract"
	"fathom/internal/markdown"
	"fathom/internal/model"
	"fathom/internal/renderer"
	"fathom/internal/urlnorm"
)

// skipPatterns are substrings that mark non-content URLs. Matched
// against the lowercased absolute URL.
var skipPatterns = []string{
	"/login", "/logout", "/register", "/signup", "/admin",
	".pdf", ".doc", ".docx", ".zip", ".exe", ".dmg",
	"mailto:", "tel:", "javascript:", "#",
	"/feed", "/rss", "/api/", "/ajax/",
}

// Options are the process-level crawler settings; per-request knobs live
// in model.CrawlParams.
type Options struct {
	MaxLinksPerPage int
	RespectRobots   bool
}

type Crawler struct {
	renderer renderer.Renderer
	scripts  *renderer.Scripts
	opts     Options
	robots   *robotsCache
}

func New(r renderer.Renderer, scripts *renderer.Scripts, opts Options) *Crawler {
	if opts.MaxLinksPerPage <= 0 {
		opts.MaxLinksPerPage = 20
	}
	c := &Crawler{renderer: r, scripts: scripts, opts: opts}
	if opts.RespectRobots {
		c.robots = newRobotsCache()
	}
	return c
}

type queueItem struct {
	url    string
	depth  int
	parent int
}

// Crawl runs the breadth-first scrape and returns the aggregated result
// plus the seed page screenshot when one was requested. Per-page
// failures are logged and skipped; the crawl itself only fails on a
// cancelled context.
func (c *Crawler) Crawl(ctx context.Context, params model.CrawlParams, onProgress func(model.Progress)) (*model.CrawlResult, []byte, error) {
	seed := params.URL
	baseDomain := urlnorm.RegisteredDomain(seed)
	depth := params.Depth

	visited := map[string]struct{}{}
	var flat []model.PageRecord
	var levels []model.Level
	var baseScreenshot []byte

	queue := []queueItem{{url: seed, depth: 0, parent: -1}}
	currentLevel := 0
	maxPercent := 0.0

	emit := func(p model.Progress) {
		if onProgress == nil {
			return
		}
		if p.Percent < maxPercent {
			p.Percent = maxPercent
		}
		maxPercent = p.Percent
		onProgress(p)
	}

	log.Info().Str("url", seed).Int("depth", depth).Msg("starting deep scrape")

	for len(queue) > 0 && currentLevel < depth {
		var batch []queueItem
		for len(queue) > 0 && queue[0].depth == currentLevel {
			item := queue[0]
			queue = queue[1:]
			if _, seen := visited[item.url]; seen {
				continue
			}
			visited[item.url] = struct{}{}
			batch = append(batch, item)
		}
		if len(batch) == 0 {
			break
		}
		if len(batch) > params.MaxURLsPerLevel {
			batch = batch[:params.MaxURLsPerLevel]
		}

		log.Info().Int("level", currentLevel).Int("urls", len(batch)).Msg("processing level")
		level := model.Level{Level: currentLevel}

		for i, item := range batch {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}

			shot := c.scrapePage(ctx, item, i, currentLevel, params, baseDomain, visited, &queue, &level, &flat)
			if shot != nil {
				baseScreenshot = shot
			}

			emit(model.Progress{
				CurrentLevel: currentLevel,
				CurrentPage:  i + 1,
				PagesInLevel: len(batch),
				TotalLevels:  depth,
				TotalPages:   len(flat),
				LastURL:      item.url,
				Percent:      pagePercent(currentLevel, i, len(batch), depth),
			})

			if params.Delay > 0 {
				select {
				case <-time.After(time.Duration(params.Delay * float64(time.Second))):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
			}
		}

		if len(level.Pages) > 0 {
			levels = append(levels, level)
		}
		emit(model.Progress{
			CurrentLevel: currentLevel,
			PagesInLevel: len(batch),
			TotalLevels:  depth,
			TotalPages:   len(flat),
			Percent:      levelPercent(currentLevel, depth),
		})
		currentLevel++
	}

	result := &model.CrawlResult{
		BaseURL:    seed,
		Domain:     baseDomain,
		Date:       time.Now().UTC().Format(time.RFC3339),
		TotalPages: len(flat),
		Levels:     levels,
	}
	log.Info().Str("url", seed).Int("total_pages", len(flat)).Msg("deep scrape completed")
	return result, baseScreenshot, nil
}

// scrapePage renders one URL, pushes its valid outlinks, and appends its
// page record. It returns the screenshot when this is the seed page and
// one was requested. Failures are logged, never propagated.
func (c *Crawler) scrapePage(ctx context.Context, item queueItem, pageIdx, currentLevel int, params model.CrawlParams, baseDomain string, visited map[string]struct{}, queue *[]queueItem, level *model.Level, flat *[]model.PageRecord) []byte {
	if c.robots != nil && !c.robots.allowed(ctx, item.url) {
		log.Info().Str("url", item.url).Msg("disallowed by robots.txt")
		return nil
	}

	page, err := c.renderer.Render(ctx, item.url, params.Render, []string{c.scripts.Readability})
	if err != nil {
		log.Error().Err(err).Str("url", item.url).Msg("render failed")
		return nil
	}
	defer page.Close()

	pageURL := page.URL()
	pageHTML, err := page.HTML()
	if err != nil {
		log.Error().Err(err).Str("url", item.url).Msg("content read failed")
		return nil
	}

	var shot []byte
	if currentLevel == 0 && pageIdx == 0 && params.Screenshot {
		if shot, err = page.Screenshot(); err != nil {
			log.Error().Err(err).Str("url", item.url).Msg("screenshot failed")
			shot = nil
		}
	}

	rawArticle, err := page.Evaluate(c.scripts.ArticleWith(params.Readability))
	if err != nil {
		log.Error().Err(err).Str("url", item.url).Msg("article extractor failed")
		return shot
	}
	article, artErr := extract.DecodeArticle(rawArticle)
	if artErr != nil {
		// Not parseable as an article; the page still contributes links.
		log.Debug().Err(artErr).Str("url", item.url).Msg("no article extracted")
	}

	if currentLevel+1 < params.Depth {
		c.pushLinks(ctx, page, item.url, currentLevel, params, baseDomain, visited, queue, len(*flat))
	}

	if article != nil {
		rec := model.PageRecord{
			URL:             pageURL,
			Title:           article.Title,
			Content:         article.Content,
			ContentMarkdown: markdown.Convert(article.Content),
			TextContent:     article.TextContent,
			Byline:          article.Byline,
			Excerpt:         article.Excerpt,
			Lang:            article.Lang,
			Length:          len(article.TextContent) - strings.Count(article.TextContent, "\n"),
			Meta:            extract.SocialMetaTags(pageHTML),
			ParentIndex:     item.parent,
			Level:           currentLevel,
		}
		level.Pages = append(level.Pages, rec)
		*flat = append(*flat, rec)
	}
	return shot
}

func (c *Crawler) pushLinks(ctx context.Context, page renderer.Page, currentURL string, currentLevel int, params model.CrawlParams, baseDomain string, visited map[string]struct{}, queue *[]queueItem, parentIdx int) {
	rawLinks, err := page.Evaluate(c.scripts.Links)
	if err != nil {
		log.Error().Err(err).Str("url", currentURL).Msg("link extractor failed")
		return
	}
	links, err := extract.DecodeLinks(rawLinks)
	if err != nil {
		log.Debug().Err(err).Str("url", currentURL).Msg("no links extracted")
		return
	}
	if len(links) > c.opts.MaxLinksPerPage {
		links = links[:c.opts.MaxLinksPerPage]
	}
	for _, link := range links {
		absolute, ok := validLink(link.URL, currentURL, baseDomain, params, visited)
		if !ok {
			continue
		}
		*queue = append(*queue, queueItem{url: absolute, depth: currentLevel + 1, parent: parentIdx})
	}
}

// validLink resolves the link against the current page and applies the
// validity rules: http(s) scheme, not yet visited, same registered
// domain when restricted, no exclude substring (case-sensitive), and no
// hard-coded skip substring (case-insensitive).
func validLink(link, currentURL, baseDomain string, params model.CrawlParams, visited map[string]struct{}) (string, bool) {
	if link == "" {
		return "", false
	}
	base, err := url.Parse(currentURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	absolute := abs.String()

	if _, seen := visited[absolute]; seen {
		return "", false
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if params.SameDomainOnly && urlnorm.RegisteredDomain(absolute) != baseDomain {
		return "", false
	}
	for _, pattern := range params.ExcludePatterns {
		if pattern != "" && strings.Contains(absolute, pattern) {
			return "", false
		}
	}
	lower := strings.ToLower(absolute)
	for _, skip := range skipPatterns {
		if strings.Contains(lower, skip) {
			return "", false
		}
	}
	return absolute, true
}

func pagePercent(level, pageIdx, pagesInLevel, depth int) float64 {
	p := 100 * (float64(level) + float64(pageIdx+1)/float64(pagesInLevel)) / float64(depth)
	return math.Round(p*100) / 100
}

func levelPercent(level, depth int) float64 {
	p := 100 * float64(level+1) / float64(depth)
	return math.Round(p*100) / 100
}
