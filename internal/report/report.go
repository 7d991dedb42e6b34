// Package report renders a crawl result as one consolidated Markdown
// document: header, table of contents, then content grouped by level.
package report

import (
	"fmt"
	"strings"

	"fathom/internal/model"
)

func Consolidated(res *model.CrawlResult) string {
	var out []string

	out = append(out,
		fmt.Sprintf("# Deep Scraping Results: %s", res.Domain),
		fmt.Sprintf("**Base URL:** %s", res.BaseURL),
		fmt.Sprintf("**Date:** %s", res.Date),
		fmt.Sprintf("**Total Pages:** %d", res.TotalPages),
		fmt.Sprintf("**Levels:** %d", len(res.Levels)),
		"\n---\n",
	)

	out = append(out, "## Table of Contents")
	counter := 1
	for _, level := range res.Levels {
		for _, page := range level.Pages {
			title := page.Title
			if title == "" {
				title = fmt.Sprintf("Page %d", counter)
			}
			out = append(out, fmt.Sprintf("%d. %s", counter, title))
			counter++
		}
	}
	out = append(out, "\n---\n")

	for _, level := range res.Levels {
		out = append(out,
			fmt.Sprintf("## Level %d", level.Level),
			fmt.Sprintf("*%d pages at this level*\n", len(level.Pages)),
		)
		for _, page := range level.Pages {
			title := page.Title
			if title == "" {
				title = "Untitled Page"
			}
			out = append(out,
				fmt.Sprintf("### %s", title),
				fmt.Sprintf("**URL:** %s", page.URL),
			)
			if page.Byline != "" {
				out = append(out, fmt.Sprintf("**Author:** %s", page.Byline))
			}
			if page.Excerpt != "" {
				out = append(out, fmt.Sprintf("*%s*", page.Excerpt))
			}
			out = append(out, "")
			if page.ContentMarkdown != "" {
				out = append(out, page.ContentMarkdown)
			}
			out = append(out, "\n---\n")
		}
	}

	return strings.Join(out, "\n")
}
