// Package model defines the shared data types for crawl requests, results,
// jobs, and progress snapshots.
package model

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of an async crawl job.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusError   JobStatus = "error"
	StatusSkipped JobStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusSkipped
}

// RenderOptions are the pass-through browser options for a single page load.
type RenderOptions struct {
	Timeout        time.Duration     `json:"timeout,omitempty"`
	WaitUntil      string            `json:"wait_until,omitempty"`
	ViewportWidth  int               `json:"viewport_width,omitempty"`
	ViewportHeight int               `json:"viewport_height,omitempty"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Proxy          string            `json:"proxy,omitempty"`
	Cookies        []Cookie          `json:"cookies,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers,omitempty"`
}

// Cookie is a browser cookie installed before navigation.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// ReadabilityOptions tune the in-browser article extractor.
type ReadabilityOptions struct {
	MaxElemsToParse int `json:"max_elems_to_parse,omitempty"`
	NbTopCandidates int `json:"nb_top_candidates,omitempty"`
	CharThreshold   int `json:"char_threshold,omitempty"`
}

// CrawlParams describes one deep-scrape request. Field ranges follow the
// HTTP surface: depth 1..10, fan-out 1..50, delay 0.1..10 seconds.
type CrawlParams struct {
	URL             string             `json:"url"`
	Depth           int                `json:"depth"`
	MaxURLsPerLevel int                `json:"max_urls_per_level"`
	SameDomainOnly  bool               `json:"same_domain_only"`
	Delay           float64            `json:"delay_between_requests"`
	ExcludePatterns []string           `json:"exclude_patterns,omitempty"`
	Screenshot      bool               `json:"screenshot,omitempty"`
	Cache           bool               `json:"cache"`
	Render          RenderOptions      `json:"render,omitempty"`
	Readability     ReadabilityOptions `json:"readability,omitempty"`
}

// DefaultCrawlParams returns a CrawlParams with the documented defaults.
func DefaultCrawlParams() CrawlParams {
	return CrawlParams{
		Depth:           3,
		MaxURLsPerLevel: 10,
		SameDomainOnly:  true,
		Delay:           1.0,
		Cache:           true,
	}
}

// Validate checks the documented parameter ranges.
func (p *CrawlParams) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
		return fmt.Errorf("url must be absolute http(s): %s", p.URL)
	}
	if p.Depth < 1 || p.Depth > 10 {
		return fmt.Errorf("depth must be in 1..10, got %d", p.Depth)
	}
	if p.MaxURLsPerLevel < 1 || p.MaxURLsPerLevel > 50 {
		return fmt.Errorf("max-urls-per-level must be in 1..50, got %d", p.MaxURLsPerLevel)
	}
	if p.Delay < 0.1 || p.Delay > 10 {
		return fmt.Errorf("delay-between-requests must be in 0.1..10, got %g", p.Delay)
	}
	return nil
}

// PageRecord is one scraped page inside a crawl result.
type PageRecord struct {
	URL             string                       `json:"url"`
	Title           string                       `json:"title,omitempty"`
	Content         string                       `json:"content,omitempty"`
	ContentMarkdown string                       `json:"contentMarkdown,omitempty"`
	TextContent     string                       `json:"textContent,omitempty"`
	Byline          string                       `json:"byline,omitempty"`
	Excerpt         string                       `json:"excerpt,omitempty"`
	Lang            string                       `json:"lang,omitempty"`
	Length          int                          `json:"length"`
	Meta            map[string]map[string]string `json:"meta,omitempty"`
	ParentIndex     int                          `json:"parent_index"`
	Level           int                          `json:"level"`
}

// Level groups the pages scraped at one BFS depth.
type Level struct {
	Level int          `json:"level"`
	Pages []PageRecord `json:"pages"`
}

// CrawlResult is the aggregated output of one deep scrape. ID equals the
// request fingerprint; ParentIndex values in page records index into the
// flat page sequence obtained by concatenating Levels in order.
type CrawlResult struct {
	ID            string              `json:"id"`
	BaseURL       string              `json:"base_url"`
	Domain        string              `json:"domain"`
	Date          string              `json:"date"`
	Query         map[string][]string `json:"query,omitempty"`
	TotalPages    int                 `json:"total_pages"`
	Levels        []Level             `json:"levels"`
	ResultURI     string              `json:"resultUri,omitempty"`
	ScreenshotURI string              `json:"screenshotUri,omitempty"`
}

// Progress is a snapshot of a crawl's position. Percent is monotonically
// non-decreasing for a given job and reaches 100 at termination.
type Progress struct {
	CurrentLevel int     `json:"current_level"`
	CurrentPage  int     `json:"current_page"`
	PagesInLevel int     `json:"pages_in_level"`
	TotalLevels  int     `json:"total_levels"`
	TotalPages   int     `json:"total_pages"`
	LastURL      string  `json:"last_url,omitempty"`
	Percent      float64 `json:"percent"`
	Status       string  `json:"status,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Terminal reports whether the snapshot marks the end of a job.
func (p *Progress) Terminal() bool {
	return p.Percent >= 100 || p.Status == string(StatusDone) || p.Status == string(StatusError)
}

// JobRecord is the persisted state of an async crawl job.
type JobRecord struct {
	JobID     string      `json:"job_id"`
	Status    JobStatus   `json:"status"`
	CreatedAt float64     `json:"created_at"`
	UpdatedAt float64     `json:"updated_at"`
	Error     string      `json:"error,omitempty"`
	ResultID  string      `json:"result_id,omitempty"`
	Params    CrawlParams `json:"params"`
	Progress  *Progress   `json:"progress,omitempty"`
}
