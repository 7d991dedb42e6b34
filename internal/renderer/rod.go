package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"fathom/internal/config"
	"fathom/internal/model"
)

// Rod renders pages through a shared rod browser connection. Each Render
// call gets its own incognito browser context so cookies, headers, and
// proxies never leak between requests.
type Rod struct {
	browser *rod.Browser
	timeout time.Duration
	ua      string
}

func NewRod(cfg config.BrowserConfig) (*Rod, error) {
	b := rod.New()
	if cfg.ControlURL != "" {
		b = b.ControlURL(cfg.ControlURL)
	}
	if err := b.Connect(); err != nil {
		return nil, err
	}
	return &Rod{
		browser: b,
		timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		ua:      cfg.UserAgent,
	}, nil
}

// Close shuts the underlying browser connection down.
func (r *Rod) Close() error {
	return r.browser.Close()
}

func (r *Rod) Render(ctx context.Context, rawURL string, opts model.RenderOptions, initScripts []string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: KindNavigation, URL: rawURL, Err: err}
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	bctx, err := r.newContext(ctx, opts.Proxy)
	if err != nil {
		return nil, classify(rawURL, err)
	}

	timeout := r.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	page, err := bctx.Page(proto.TargetCreateTarget{})
	if err != nil {
		disposeContext(bctx)
		return nil, classify(rawURL, err)
	}
	page = page.Context(ctx).Timeout(timeout)

	fail := func(err error) (Page, error) {
		_ = page.Close()
		disposeContext(bctx)
		return nil, classify(rawURL, err)
	}

	if err := r.preparePage(page, opts, initScripts); err != nil {
		return fail(err)
	}

	wait := page.WaitNavigation(lifecycleEvent(opts.WaitUntil))
	if err := page.Navigate(u.String()); err != nil {
		return fail(err)
	}
	wait()

	return &rodPage{page: page, bctx: bctx, url: rawURL}, nil
}

func (r *Rod) preparePage(page *rod.Page, opts model.RenderOptions, initScripts []string) error {
	ua := r.ua
	if opts.UserAgent != "" {
		ua = opts.UserAgent
	}
	if ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return err
		}
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return err
		}
	}
	if len(opts.ExtraHeaders) > 0 {
		kv := make([]string, 0, len(opts.ExtraHeaders)*2)
		for k, v := range opts.ExtraHeaders {
			kv = append(kv, k, v)
		}
		if _, err := page.SetExtraHeaders(kv); err != nil {
			return err
		}
	}
	if len(opts.Cookies) > 0 {
		cookies := make([]*proto.NetworkCookieParam, 0, len(opts.Cookies))
		for _, c := range opts.Cookies {
			cookies = append(cookies, &proto.NetworkCookieParam{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		if err := page.SetCookies(cookies); err != nil {
			return err
		}
	}
	for _, src := range initScripts {
		if _, err := page.EvalOnNewDocument(src); err != nil {
			return &Error{Kind: KindScript, Err: err}
		}
	}
	return nil
}

// newContext creates an incognito browser context, optionally routed
// through a proxy.
func (r *Rod) newContext(ctx context.Context, proxy string) (*rod.Browser, error) {
	if proxy == "" {
		return r.browser.Context(ctx).Incognito()
	}
	res, err := proto.TargetCreateBrowserContext{ProxyServer: proxy}.Call(r.browser)
	if err != nil {
		return nil, err
	}
	bctx := *r.browser
	bctx.BrowserContextID = res.BrowserContextID
	return bctx.Context(ctx), nil
}

func disposeContext(bctx *rod.Browser) {
	if bctx.BrowserContextID != "" {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: bctx.BrowserContextID}.Call(bctx)
	}
}

func lifecycleEvent(waitUntil string) proto.PageLifecycleEventName {
	switch strings.ToLower(waitUntil) {
	case "domcontentloaded":
		return proto.PageLifecycleEventNameDOMContentLoaded
	case "networkidle":
		return proto.PageLifecycleEventNameNetworkIdle
	default:
		return proto.PageLifecycleEventNameLoad
	}
}

func classify(rawURL string, err error) error {
	var re *Error
	if errors.As(err, &re) {
		if re.URL == "" {
			re.URL = rawURL
		}
		return re
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &Error{Kind: KindNavigation, URL: rawURL, Err: err}
}

type rodPage struct {
	page *rod.Page
	bctx *rod.Browser
	url  string
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil || info.URL == "" {
		return p.url
	}
	return info.URL
}

func (p *rodPage) HTML() (string, error) {
	htmlStr, err := p.page.HTML()
	if err != nil {
		return "", classify(p.url, err)
	}
	if strings.TrimSpace(htmlStr) == "" {
		return "", &Error{Kind: KindNoContent, URL: p.url}
	}
	return htmlStr, nil
}

func (p *rodPage) Evaluate(js string) (json.RawMessage, error) {
	res, err := p.page.Eval(js)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, URL: p.url, Err: err}
		}
		return nil, &Error{Kind: KindScript, URL: p.url, Err: err}
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, &Error{Kind: KindScript, URL: p.url, Err: err}
	}
	return raw, nil
}

func (p *rodPage) Screenshot() ([]byte, error) {
	buf, err := p.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, classify(p.url, err)
	}
	return buf, nil
}

func (p *rodPage) Close() {
	_ = p.page.Close()
	disposeContext(p.bctx)
}

// FullMarkdown converts a rendered document into Markdown with the
// CommonMark converter, keyed by the page host for relative links.
func FullMarkdown(pageURL, htmlStr string) (string, error) {
	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Hostname()
	}
	converter := htmlmd.NewConverter(host, true, nil)
	return converter.ConvertString(htmlStr)
}
