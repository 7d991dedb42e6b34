package report

import (
	"strings"
	"testing"

	"fathom/internal/model"
)

func TestConsolidated(t *testing.T) {
	res := &model.CrawlResult{
		BaseURL:    "https://site.example/",
		Domain:     "site.example",
		Date:       "2026-01-02T03:04:05Z",
		TotalPages: 3,
		Levels: []model.Level{
			{Level: 0, Pages: []model.PageRecord{
				{URL: "https://site.example/", Title: "Home", ContentMarkdown: "# Home\n\nwelcome"},
			}},
			{Level: 1, Pages: []model.PageRecord{
				{URL: "https://site.example/a", Title: "First Post", Byline: "A. Writer", Excerpt: "short summary", ContentMarkdown: "body a"},
				{URL: "https://site.example/b"},
			}},
		},
	}

	md := Consolidated(res)

	for _, want := range []string{
		"# Deep Scraping Results: site.example",
		"**Base URL:** https://site.example/",
		"**Total Pages:** 3",
		"**Levels:** 2",
		"## Table of Contents",
		"1. Home",
		"2. First Post",
		"3. Page 3",
		"## Level 0",
		"## Level 1",
		"*2 pages at this level*",
		"### First Post",
		"**Author:** A. Writer",
		"*short summary*",
		"body a",
		"### Untitled Page",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("report missing %q:\n%s", want, md)
		}
	}

	if strings.Index(md, "## Table of Contents") > strings.Index(md, "## Level 0") {
		t.Fatalf("table of contents after content")
	}
}
