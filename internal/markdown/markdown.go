// Package markdown converts readable-article HTML into Markdown using a
// fixed pattern-based mapping. The mapping is deliberately simple and
// deterministic: headings, paragraphs, links, images, emphasis, code,
// lists, and blockquotes are rewritten, every other tag is stripped, and
// plain text passes through unchanged.
package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
	fn   func(inner string) string
}

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	liRe     = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)

	blankRunsRe = regexp.MustCompile(`\n\s*\n\s*\n`)
	spaceRunsRe = regexp.MustCompile(`[ \t]+`)
)

var rules = []rule{
	{re: regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`), repl: "# ${1}\n"},
	{re: regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`), repl: "## ${1}\n"},
	{re: regexp.MustCompile(`(?is)<h3[^>]*>(.*?)</h3>`), repl: "### ${1}\n"},
	{re: regexp.MustCompile(`(?is)<h4[^>]*>(.*?)</h4>`), repl: "#### ${1}\n"},
	{re: regexp.MustCompile(`(?is)<h5[^>]*>(.*?)</h5>`), repl: "##### ${1}\n"},
	{re: regexp.MustCompile(`(?is)<h6[^>]*>(.*?)</h6>`), repl: "###### ${1}\n"},
	{re: regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`), repl: "${1}\n\n"},
	{re: regexp.MustCompile(`(?i)<br[^>]*/?>`), repl: "\n"},
	{re: regexp.MustCompile(`(?is)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`), repl: "[${2}](${1})"},
	{re: regexp.MustCompile(`(?is)<img[^>]*src="([^"]*)"[^>]*alt="([^"]*)"[^>]*/?>`), repl: "![${2}](${1})"},
	{re: regexp.MustCompile(`(?is)<img[^>]*alt="([^"]*)"[^>]*src="([^"]*)"[^>]*/?>`), repl: "![${1}](${2})"},
	{re: regexp.MustCompile(`(?is)<img[^>]*src="([^"]*)"[^>]*/?>`), repl: "![](${1})"},
	{re: regexp.MustCompile(`(?is)<strong[^>]*>(.*?)</strong>`), repl: "**${1}**"},
	{re: regexp.MustCompile(`(?is)<b[^>]*>(.*?)</b>`), repl: "**${1}**"},
	{re: regexp.MustCompile(`(?is)<em[^>]*>(.*?)</em>`), repl: "*${1}*"},
	{re: regexp.MustCompile(`(?is)<i[^>]*>(.*?)</i>`), repl: "*${1}*"},
	{re: regexp.MustCompile("(?is)<code[^>]*>(.*?)</code>"), repl: "`${1}`"},
	{re: regexp.MustCompile(`(?is)<pre[^>]*>(.*?)</pre>`), repl: "```\n${1}\n```\n"},
	{re: regexp.MustCompile(`(?is)<ul[^>]*>(.*?)</ul>`), fn: func(inner string) string { return convertList(inner, false) }},
	{re: regexp.MustCompile(`(?is)<ol[^>]*>(.*?)</ol>`), fn: func(inner string) string { return convertList(inner, true) }},
	{re: regexp.MustCompile(`(?is)<blockquote[^>]*>(.*?)</blockquote>`), repl: "> ${1}\n"},
	{re: regexp.MustCompile(`(?is)<div[^>]*>(.*?)</div>`), repl: "${1}\n"},
	{re: regexp.MustCompile(`(?is)<span[^>]*>(.*?)</span>`), repl: "${1}"},
}

// Convert rewrites HTML content as Markdown. Script and style subtrees are
// removed before conversion; afterwards HTML entities are decoded, runs of
// three or more blank lines collapse to two, runs of spaces and tabs
// collapse to one, and the result is trimmed.
func Convert(htmlContent string) string {
	if htmlContent == "" {
		return ""
	}

	s := scriptRe.ReplaceAllString(htmlContent, "")
	s = styleRe.ReplaceAllString(s, "")

	for _, r := range rules {
		if r.fn != nil {
			re := r.re
			fn := r.fn
			s = re.ReplaceAllStringFunc(s, func(match string) string {
				groups := re.FindStringSubmatch(match)
				if len(groups) < 2 {
					return ""
				}
				return fn(groups[1])
			})
			continue
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}
	s = tagRe.ReplaceAllString(s, "")

	s = html.UnescapeString(s)
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	s = spaceRunsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func convertList(inner string, ordered bool) string {
	items := liRe.FindAllStringSubmatch(inner, -1)
	lines := make([]string, 0, len(items))
	for i, item := range items {
		text := strings.TrimSpace(tagRe.ReplaceAllString(item[1], ""))
		if ordered {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, text))
		} else {
			lines = append(lines, "- "+text)
		}
	}
	return strings.Join(lines, "\n") + "\n\n"
}
