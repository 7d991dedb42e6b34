// Package extract decodes the records produced by the in-browser
// extraction scripts and post-processes their content.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoArticle is returned when the extractor produced no record at all.
var ErrNoArticle = errors.New("the page doesn't contain any articles")

// ParseError is the extractor's own failure signal, carried in an err
// field of the returned record. It is a domain-level condition, not a
// render failure.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("article parsing failed: %s", e.Msg)
}

// Article is the record returned by the article extractor.
type Article struct {
	Title         string `json:"title,omitempty"`
	Byline        string `json:"byline,omitempty"`
	Dir           string `json:"dir,omitempty"`
	Content       string `json:"content,omitempty"`
	TextContent   string `json:"textContent,omitempty"`
	Excerpt       string `json:"excerpt,omitempty"`
	Lang          string `json:"lang,omitempty"`
	Length        int    `json:"length,omitempty"`
	SiteName      string `json:"siteName,omitempty"`
	PublishedTime string `json:"publishedTime,omitempty"`
}

// Link is one record from the link extractor.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// DecodeArticle parses the article extractor output. A null result maps
// to ErrNoArticle; a record carrying an err field maps to *ParseError.
func DecodeArticle(raw json.RawMessage) (*Article, error) {
	if isNull(raw) {
		return nil, ErrNoArticle
	}
	if msg, ok := errField(raw); ok {
		return nil, &ParseError{Msg: msg}
	}
	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode article record: %w", err)
	}
	return &a, nil
}

// DecodeLinks parses the link extractor output. A null result is an
// empty list; an err record maps to *ParseError. Link text is reduced
// to its most descriptive line.
func DecodeLinks(raw json.RawMessage) ([]Link, error) {
	if isNull(raw) {
		return nil, nil
	}
	if msg, ok := errField(raw); ok {
		return nil, &ParseError{Msg: msg}
	}
	var links []Link
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("decode link records: %w", err)
	}
	for i := range links {
		links[i] = ImproveLink(links[i])
	}
	return links, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func errField(raw json.RawMessage) (string, bool) {
	var probe struct {
		Err *string `json:"err"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Err == nil {
		return "", false
	}
	return *probe.Err, true
}
