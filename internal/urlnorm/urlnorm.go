// Package urlnorm canonicalizes URLs and derives the stable fingerprints
// used as cache keys and result IDs. Two requests that differ only in
// tracking parameters, fragments, host casing, or trailing slashes must
// produce the same fingerprint.
package urlnorm

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Tracking parameters dropped during canonicalization. Any key with the
// utm_ prefix is dropped as well.
var ignoredParams = map[string]struct{}{
	"ref":      {},
	"referrer": {},
	"session":  {},
	"fbclid":   {},
	"gclid":    {},
	"yclid":    {},
	"mc_cid":   {},
	"mc_eid":   {},
}

// Canonicalize returns the canonical form of a URL:
// lowercased host, no fragment, tracking parameters removed, remaining
// parameters preserved in their original order and case, empty path
// replaced with "/", and non-root trailing slashes stripped.
// Malformed input is returned unchanged.
func Canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = filterQuery(u.RawQuery, nil)

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	u.RawPath = ""
	u.Path = path

	return u.String()
}

// FingerprintURL derives the result ID for a bare URL.
func FingerprintURL(raw string) string {
	return hash(Canonicalize(raw))
}

// Fingerprint derives the result ID for a full request path with query
// (e.g. "/api/deep-scrape?url=...&depth=3"). The request string itself is
// canonicalized, and the value of a "url" parameter, when present, is
// canonicalized recursively so that tracking noise inside the target URL
// does not produce a distinct fingerprint.
func Fingerprint(pathWithQuery string) string {
	u, err := url.Parse(pathWithQuery)
	if err != nil {
		return hash(pathWithQuery)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = filterQuery(u.RawQuery, func(key, value string) string {
		if key != "url" {
			return value
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return value
		}
		return url.QueryEscape(Canonicalize(decoded))
	})

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	u.RawPath = ""
	u.Path = path

	return hash(u.String())
}

// RegisteredDomain returns the eTLD+1 for the URL's host ("blog.site.co.uk"
// -> "site.co.uk"). When the suffix cannot be determined (IPs, localhost)
// the lowercased host is returned as-is.
func RegisteredDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// filterQuery removes tracking parameters from a raw query string while
// preserving the order and case of everything else. mapValue, when non-nil,
// may rewrite the (still escaped) value of a surviving parameter.
func filterQuery(rawQuery string, mapValue func(key, value string) string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		if isTrackingParam(key) {
			continue
		}
		if mapValue != nil && hasValue {
			rawValue = mapValue(key, rawValue)
		}
		if hasValue {
			kept = append(kept, rawKey+"="+rawValue)
		} else {
			kept = append(kept, rawKey)
		}
	}
	return strings.Join(kept, "&")
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := ignoredParams[key]
	return ok
}

func hash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
