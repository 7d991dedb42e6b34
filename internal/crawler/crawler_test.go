package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"fathom/internal/model"
	"fathom/internal/renderer"
)

// fakePage serves canned extractor output so crawls run without a
// browser.
type fakePage struct {
	url     string
	html    string
	article string
	links   string
}

func (p *fakePage) URL() string           { return p.url }
func (p *fakePage) HTML() (string, error) { return p.html, nil }
func (p *fakePage) Close()                {}

func (p *fakePage) Screenshot() ([]byte, error) { return []byte("png-bytes"), nil }

func (p *fakePage) Evaluate(js string) (json.RawMessage, error) {
	switch js {
	case "article-script":
		return json.RawMessage(p.article), nil
	case "links-script":
		return json.RawMessage(p.links), nil
	}
	return nil, &renderer.Error{Kind: renderer.KindScript, URL: p.url}
}

type fakeRenderer struct {
	pages    map[string]*fakePage
	rendered []string
}

func (f *fakeRenderer) Render(_ context.Context, rawURL string, _ model.RenderOptions, _ []string) (renderer.Page, error) {
	f.rendered = append(f.rendered, rawURL)
	p, ok := f.pages[rawURL]
	if !ok {
		return nil, &renderer.Error{Kind: renderer.KindNavigation, URL: rawURL}
	}
	return p, nil
}

var testScripts = &renderer.Scripts{Readability: "readability-script", Article: "article-script", Links: "links-script"}

func articleJSON(title string) string {
	return fmt.Sprintf(`{"title":%q,"content":"<p>%s body text</p>","textContent":"%s body text"}`, title, title, title)
}

func linksJSON(urls ...string) string {
	records := make([]string, 0, len(urls))
	for _, u := range urls {
		records = append(records, fmt.Sprintf(`{"url":%q,"text":"link"}`, u))
	}
	return "[" + strings.Join(records, ",") + "]"
}

func page(url, article, links string) *fakePage {
	return &fakePage{url: url, html: "<html><body></body></html>", article: article, links: links}
}

func params(url string, depth, fanout int) model.CrawlParams {
	return model.CrawlParams{URL: url, Depth: depth, MaxURLsPerLevel: fanout, SameDomainOnly: true}
}

func newTestCrawler(f *fakeRenderer) *Crawler {
	return New(f, testScripts, Options{MaxLinksPerPage: 20})
}

func TestCrawlDepthOneRendersOnlySeed(t *testing.T) {
	seed := "https://site.example/"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON("https://site.example/a")),
	}}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 1, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(f.rendered) != 1 || f.rendered[0] != seed {
		t.Fatalf("rendered = %v, want only the seed", f.rendered)
	}
	if res.TotalPages != 1 || len(res.Levels) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestCrawlBreadthFirstLevels(t *testing.T) {
	seed := "https://site.example/"
	a := "https://site.example/a"
	b := "https://site.example/b"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON(a, b)),
		a:    page(a, articleJSON("A"), linksJSON("https://site.example/c")),
		b:    page(b, articleJSON("B"), linksJSON()),
	}}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 2, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(f.rendered) != 3 {
		t.Fatalf("rendered %v, want seed plus two level-1 pages", f.rendered)
	}
	if res.TotalPages != 3 || len(res.Levels) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Levels[0].Pages[0].Title != "Seed" {
		t.Fatalf("level 0 = %+v", res.Levels[0])
	}
	// Encounter order within the level is preserved.
	if res.Levels[1].Pages[0].Title != "A" || res.Levels[1].Pages[1].Title != "B" {
		t.Fatalf("level 1 order = %+v", res.Levels[1].Pages)
	}
	// Both level-1 pages point back at the seed in the flat sequence.
	for _, p := range res.Levels[1].Pages {
		if p.ParentIndex != 0 {
			t.Fatalf("parent index = %d, want 0", p.ParentIndex)
		}
	}
	if res.Levels[0].Pages[0].ParentIndex != -1 {
		t.Fatalf("seed parent index = %d, want -1", res.Levels[0].Pages[0].ParentIndex)
	}
}

func TestCrawlFanOutTruncation(t *testing.T) {
	seed := "https://site.example/"
	var links []string
	pages := map[string]*fakePage{}
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("https://site.example/p%d", i)
		links = append(links, u)
		pages[u] = page(u, articleJSON(fmt.Sprintf("P%d", i)), linksJSON())
	}
	pages[seed] = page(seed, articleJSON("Seed"), linksJSON(links...))
	f := &fakeRenderer{pages: pages}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 2, 2), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(res.Levels) != 2 || len(res.Levels[1].Pages) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Levels[1].Pages[0].Title != "P0" || res.Levels[1].Pages[1].Title != "P1" {
		t.Fatalf("truncation broke encounter order: %+v", res.Levels[1].Pages)
	}
}

func TestCrawlVisitedSetPreventsRevisit(t *testing.T) {
	seed := "https://site.example/"
	a := "https://site.example/a"
	b := "https://site.example/b"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON(a, b)),
		a:    page(a, articleJSON("A"), linksJSON(b, seed)),
		b:    page(b, articleJSON("B"), linksJSON()),
	}}
	c := newTestCrawler(f)

	_, _, err := c.Crawl(context.Background(), params(seed, 3, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	counts := map[string]int{}
	for _, u := range f.rendered {
		counts[u]++
	}
	for u, n := range counts {
		if n != 1 {
			t.Fatalf("%s rendered %d times", u, n)
		}
	}
}

func TestCrawlExcludePatternsCaseSensitive(t *testing.T) {
	seed := "https://site.example/"
	kept := "https://site.example/Secret"
	dropped := "https://site.example/secret"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed:    page(seed, articleJSON("Seed"), linksJSON(kept, dropped)),
		kept:    page(kept, articleJSON("Kept"), linksJSON()),
		dropped: page(dropped, articleJSON("Dropped"), linksJSON()),
	}}
	c := newTestCrawler(f)

	p := params(seed, 2, 10)
	p.ExcludePatterns = []string{"secret"}
	res, _, err := c.Crawl(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(res.Levels) != 2 || len(res.Levels[1].Pages) != 1 || res.Levels[1].Pages[0].Title != "Kept" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCrawlSkipPatterns(t *testing.T) {
	seed := "https://site.example/"
	good := "https://site.example/article"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON(
			"https://site.example/login",
			"https://site.example/files/report.pdf",
			"https://site.example/api/v1/data",
			"https://site.example/feed",
			"mailto:someone@site.example",
			"https://site.example/page#section",
			good,
		)),
		good: page(good, articleJSON("Article"), linksJSON()),
	}}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 2, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(res.Levels) != 2 || len(res.Levels[1].Pages) != 1 || res.Levels[1].Pages[0].Title != "Article" {
		t.Fatalf("skip patterns leaked: %+v", res.Levels)
	}
}

func TestCrawlSameDomainRestriction(t *testing.T) {
	seed := "https://site.example/"
	external := "https://other.example/post"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed:     page(seed, articleJSON("Seed"), linksJSON(external)),
		external: page(external, articleJSON("External"), linksJSON()),
	}}

	c := newTestCrawler(f)
	res, _, err := c.Crawl(context.Background(), params(seed, 2, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if res.TotalPages != 1 {
		t.Fatalf("external link crawled despite same-domain-only: %+v", res)
	}

	f2 := &fakeRenderer{pages: f.pages}
	c2 := newTestCrawler(f2)
	p := params(seed, 2, 10)
	p.SameDomainOnly = false
	res, _, err = c2.Crawl(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if res.TotalPages != 2 {
		t.Fatalf("external link not crawled with restriction off: %+v", res)
	}
}

func TestCrawlPartialFailure(t *testing.T) {
	seed := "https://site.example/"
	a := "https://site.example/a"
	broken := "https://site.example/broken"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON(a, broken)),
		a:    page(a, articleJSON("A"), linksJSON()),
		// broken has no page entry, so its render fails.
	}}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 2, 10), nil)
	if err != nil {
		t.Fatalf("crawl must not fail on a per-page error: %v", err)
	}
	if res.TotalPages != 2 {
		t.Fatalf("total pages = %d, want 2 survivors", res.TotalPages)
	}
}

func TestCrawlArticleErrorStillFollowsLinks(t *testing.T) {
	seed := "https://site.example/"
	a := "https://site.example/a"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, `{"err":"not an article"}`, linksJSON(a)),
		a:    page(a, articleJSON("A"), linksJSON()),
	}}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 2, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if res.TotalPages != 1 || len(res.Levels) != 1 || res.Levels[0].Level != 1 {
		t.Fatalf("links not followed past unparseable seed: %+v", res)
	}
}

func TestCrawlProgress(t *testing.T) {
	seed := "https://site.example/"
	a := "https://site.example/a"
	b := "https://site.example/b"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON(a, b)),
		a:    page(a, articleJSON("A"), linksJSON()),
		b:    page(b, articleJSON("B"), linksJSON()),
	}}
	c := newTestCrawler(f)

	var percents []float64
	_, _, err := c.Crawl(context.Background(), params(seed, 2, 10), func(p model.Progress) {
		percents = append(percents, p.Percent)
	})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(percents) == 0 {
		t.Fatalf("no progress emitted")
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("percent regressed at %d: %v", i, percents)
		}
	}
	if got := percents[0]; got != 50 {
		t.Fatalf("first page percent = %g, want 50", got)
	}
	if last := percents[len(percents)-1]; last != 100 {
		t.Fatalf("final percent = %g, want 100", last)
	}
}

func TestCrawlPageRecordLength(t *testing.T) {
	seed := "https://site.example/"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, `{"title":"T","content":"<p>one two</p>","textContent":"line one\nline two"}`, linksJSON()),
	}}
	c := newTestCrawler(f)

	res, _, err := c.Crawl(context.Background(), params(seed, 1, 10), nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	// Length counts text chars minus newlines.
	want := len("line one\nline two") - 1
	if got := res.Levels[0].Pages[0].Length; got != want {
		t.Fatalf("length = %d, want %d", got, want)
	}
}

func TestCrawlSeedScreenshot(t *testing.T) {
	seed := "https://site.example/"
	f := &fakeRenderer{pages: map[string]*fakePage{
		seed: page(seed, articleJSON("Seed"), linksJSON()),
	}}
	c := newTestCrawler(f)

	p := params(seed, 1, 10)
	p.Screenshot = true
	_, shot, err := c.Crawl(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if string(shot) != "png-bytes" {
		t.Fatalf("screenshot = %q", shot)
	}
}

func TestPagePercentFormula(t *testing.T) {
	if got := pagePercent(0, 0, 3, 3); got != 11.11 {
		t.Fatalf("pagePercent(0,0,3,3) = %g, want 11.11", got)
	}
	if got := levelPercent(2, 3); got != 100 {
		t.Fatalf("levelPercent(2,3) = %g, want 100", got)
	}
}

func TestValidLinkResolvesRelative(t *testing.T) {
	params := model.CrawlParams{SameDomainOnly: true}
	abs, ok := validLink("/sub/page", "https://site.example/dir/", "site.example", params, map[string]struct{}{})
	if !ok || abs != "https://site.example/sub/page" {
		t.Fatalf("validLink = %q, %v", abs, ok)
	}
}
