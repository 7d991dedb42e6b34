package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fathom/internal/model"
)

// Scripts holds the in-browser extractor sources loaded at startup.
// Readability is injected before navigation; Article and Links are
// evaluated in the rendered page.
type Scripts struct {
	Readability string
	Article     string
	Links       string
}

func LoadScripts(dir string) (*Scripts, error) {
	read := func(name string) (string, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("load script %s: %w", name, err)
		}
		return string(b), nil
	}

	var s Scripts
	var err error
	if s.Readability, err = read("readability.js"); err != nil {
		return nil, err
	}
	if s.Article, err = read("article.js"); err != nil {
		return nil, err
	}
	if s.Links, err = read("links.js"); err != nil {
		return nil, err
	}
	return &s, nil
}

// ArticleWith fills the readability tuning placeholders in the article
// extractor. Zero values fall back to the library defaults.
func (s *Scripts) ArticleWith(opts model.ReadabilityOptions) string {
	maxElems := opts.MaxElemsToParse
	nbTop := opts.NbTopCandidates
	charThreshold := opts.CharThreshold
	if nbTop <= 0 {
		nbTop = 5
	}
	if charThreshold <= 0 {
		charThreshold = 500
	}

	r := strings.NewReplacer(
		"__MAX_ELEMS_TO_PARSE__", strconv.Itoa(maxElems),
		"__NB_TOP_CANDIDATES__", strconv.Itoa(nbTop),
		"__CHAR_THRESHOLD__", strconv.Itoa(charThreshold),
	)
	return r.Replace(s.Article)
}
