package crawler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	robotstxt "github.com/temoto/robotstxt"
)

// robotsCache fetches and caches robots.txt per scheme://host. A fetch
// failure is cached as a nil entry, which allows everything.
type robotsCache struct {
	client *http.Client

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func newRobotsCache() *robotsCache {
	return &robotsCache{
		client: &http.Client{Timeout: 10 * time.Second},
		hosts:  map[string]*robotstxt.RobotsData{},
	}
}

func (r *robotsCache) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	r.mu.Lock()
	data, ok := r.hosts[origin]
	r.mu.Unlock()
	if !ok {
		data, _ = r.fetch(ctx, u)
		r.mu.Lock()
		r.hosts[origin] = data
		r.mu.Unlock()
	}
	if data == nil {
		return true
	}
	return data.FindGroup("*").Test(u.Path)
}

func (r *robotsCache) fetch(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return robotstxt.FromBytes(body)
}
