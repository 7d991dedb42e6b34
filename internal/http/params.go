package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fathom/internal/model"
)

// parseCrawlParams builds validated crawl parameters from the request
// query. Unknown keys are ignored; malformed or out-of-range values are
// an error the handler turns into a 400.
func parseCrawlParams(q map[string]string) (model.CrawlParams, error) {
	p := model.DefaultCrawlParams()
	p.URL = q["url"]

	var err error
	if v, ok := q["depth"]; ok {
		if p.Depth, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid depth: %q", v)
		}
	}
	if v, ok := q["max-urls-per-level"]; ok {
		if p.MaxURLsPerLevel, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid max-urls-per-level: %q", v)
		}
	}
	if v, ok := q["same-domain-only"]; ok {
		if p.SameDomainOnly, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("invalid same-domain-only: %q", v)
		}
	}
	if v, ok := q["delay-between-requests"]; ok {
		if p.Delay, err = strconv.ParseFloat(v, 64); err != nil {
			return p, fmt.Errorf("invalid delay-between-requests: %q", v)
		}
	}
	if v, ok := q["exclude-patterns"]; ok {
		for _, pattern := range strings.Split(v, ",") {
			if pattern = strings.TrimSpace(pattern); pattern != "" {
				p.ExcludePatterns = append(p.ExcludePatterns, pattern)
			}
		}
	}
	if v, ok := q["cache"]; ok {
		if p.Cache, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("invalid cache: %q", v)
		}
	}
	if v, ok := q["screenshot"]; ok {
		if p.Screenshot, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("invalid screenshot: %q", v)
		}
	}

	if err := parseRenderOptions(q, &p.Render); err != nil {
		return p, err
	}
	if err := parseReadabilityOptions(q, &p.Readability); err != nil {
		return p, err
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func parseRenderOptions(q map[string]string, opts *model.RenderOptions) error {
	if v, ok := q["timeout"]; ok {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid timeout: %q", v)
		}
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := q["wait-until"]; ok {
		switch v {
		case "load", "domcontentloaded", "networkidle":
			opts.WaitUntil = v
		default:
			return fmt.Errorf("invalid wait-until: %q", v)
		}
	}
	if v, ok := q["viewport-width"]; ok {
		w, err := strconv.Atoi(v)
		if err != nil || w <= 0 {
			return fmt.Errorf("invalid viewport-width: %q", v)
		}
		opts.ViewportWidth = w
	}
	if v, ok := q["viewport-height"]; ok {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return fmt.Errorf("invalid viewport-height: %q", v)
		}
		opts.ViewportHeight = h
	}
	if v, ok := q["user-agent"]; ok {
		opts.UserAgent = v
	}
	if v, ok := q["proxy"]; ok {
		opts.Proxy = v
	}
	return nil
}

func parseReadabilityOptions(q map[string]string, opts *model.ReadabilityOptions) error {
	for key, dst := range map[string]*int{
		"max-elems-to-parse": &opts.MaxElemsToParse,
		"nb-top-candidates":  &opts.NbTopCandidates,
		"char-threshold":     &opts.CharThreshold,
	} {
		if v, ok := q[key]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid %s: %q", key, v)
			}
			*dst = n
		}
	}
	return nil
}
