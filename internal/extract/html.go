package extract

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const (
	titleMaxDistance      = 350
	acceptableLinkTextLen = 40
	titleSimilarityCutoff = 0.9
)

// mediaOrStructure marks elements whose presence keeps a short paragraph
// alive during content cleanup.
const mediaOrStructure = "img, picture, svg, canvas, video, audio, iframe, embed, object, param, source, " +
	"h1, h2, h3, h4, h5, h6, pre, code, blockquote, dl, ol, ul, table, form"

// SocialMetaTags collects Open Graph and Twitter card metadata from the
// full page markup, grouped by protocol.
func SocialMetaTags(pageHTML string) map[string]map[string]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	og := map[string]string{}
	twitter := map[string]string{}
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, hasContent := sel.Attr("content")
		if !hasContent {
			return
		}
		if prop, ok := sel.Attr("property"); ok && strings.HasPrefix(prop, "og:") {
			if key := prop[len("og:"):]; key != "" {
				og[key] = content
			}
		}
		if name, ok := sel.Attr("name"); ok && strings.HasPrefix(name, "twitter:") {
			if key := name[len("twitter:"):]; key != "" {
				twitter[key] = content
			}
		}
	})

	res := map[string]map[string]string{}
	if len(og) > 0 {
		res["og"] = og
	}
	if len(twitter) > 0 {
		res["twitter"] = twitter
	}
	if len(res) == 0 {
		return nil
	}
	return res
}

// ImproveLink replaces a link's text with its longest line. Scanning
// stops early once a line is comfortably long.
func ImproveLink(l Link) Link {
	text := ""
	for _, line := range strings.Split(l.Text, "\n") {
		if len(line) > len(text) {
			text = line
		}
		if len(text) > acceptableLinkTextLen {
			break
		}
	}
	l.Text = text
	return l
}

// ImproveTextContent drops empty lines and trims the rest.
func ImproveTextContent(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// ImproveContent cleans up extracted article markup: near-empty
// paragraphs are removed, a heading that duplicates the title is folded
// into it, and the result is wrapped in an article element headed by the
// title.
func ImproveContent(title, content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return fmt.Sprintf("<article><h1>%s</h1>%s</article>", html.EscapeString(title), content)
	}

	doc.Find("p, div").Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(mediaOrStructure).Length() > 0 {
			return
		}
		words := strings.Fields(sel.Text())
		if len(words) <= 1 || isNumeric(strings.Join(words, "")) {
			sel.Remove()
		}
	})

	// A leading heading that matches the title closely becomes the title.
	docText := doc.Text()
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return true
		}
		if idx := strings.Index(docText, text); idx < 0 || idx > titleMaxDistance {
			return false
		}
		n := len(text)
		if len(title) < n {
			n = len(title)
		}
		if levenshteinSimilarity(text[:n], title[:n]) > titleSimilarityCutoff {
			title = text
			sel.Remove()
		}
		return false
	})

	if article := doc.Find("article").First(); article.Length() > 0 {
		article.PrependHtml("<h1>" + html.EscapeString(title) + "</h1>")
		if out, err := doc.Find("body").Html(); err == nil {
			return out
		}
	}

	inner, err := doc.Find("body").Html()
	if err != nil {
		inner = content
	}
	return fmt.Sprintf("<article><h1>%s</h1>%s</article>", html.EscapeString(title), inner)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// levenshteinSimilarity compares two strings letters-only and
// case-insensitively, normalized to [0, 1].
func levenshteinSimilarity(a, b string) float64 {
	a = lettersLower(a)
	b = lettersLower(b)
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	dist := prev[len(rb)]
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(dist)/float64(maxLen)
}

func lettersLower(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
