package urlnorm

import (
	"strings"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://Site.COM/x?id=1&utm_source=g", "https://site.com/x?id=1"},
		{"https://site.com/x/?id=1#top", "https://site.com/x?id=1"},
		{"https://site.com", "https://site.com/"},
		{"https://site.com/", "https://site.com/"},
		{"https://site.com/a/b/", "https://site.com/a/b"},
		{"https://site.com/x?ref=abc&fbclid=123&id=2", "https://site.com/x?id=2"},
		{"https://site.com/x?b=2&a=1", "https://site.com/x?b=2&a=1"},
		{"https://site.com/x?Key=Value", "https://site.com/x?Key=Value"},
		{"https://site.com/x?utm_campaign=spring&utm_medium=mail", "https://site.com/x"},
		{"https://site.com/x?gclid=1&yclid=2&mc_cid=3&mc_eid=4&session=5&referrer=6", "https://site.com/x"},
	}

	for _, tc := range cases {
		if got := Canonicalize(tc.in); got != tc.want {
			t.Fatalf("Canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeMalformedReturnsInput(t *testing.T) {
	in := "http://%zz invalid"
	if got := Canonicalize(in); got != in {
		t.Fatalf("Canonicalize(%q) = %q, want input unchanged", in, got)
	}
}

func TestFingerprintTrackingCollision(t *testing.T) {
	a := Fingerprint("/api/deep-scrape?url=https://site.com/x?id=1&utm_source=g")
	b := Fingerprint("/api/deep-scrape?url=https://site.com/x/?id=1#top")
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	p := "/api/deep-scrape?url=https://a.example/&depth=3"
	if Fingerprint(p) != Fingerprint(p) {
		t.Fatalf("fingerprint not stable across calls")
	}
}

func TestFingerprintDistinguishesParams(t *testing.T) {
	a := Fingerprint("/api/deep-scrape?url=https://a.example/&depth=3")
	b := Fingerprint("/api/deep-scrape?url=https://a.example/&depth=4")
	if a == b {
		t.Fatalf("requests with different depth collapsed to the same fingerprint")
	}
}

func TestFingerprintShape(t *testing.T) {
	fp := FingerprintURL("https://site.com/x")
	if len(fp) != 40 {
		t.Fatalf("fingerprint length = %d, want 40 hex chars", len(fp))
	}
	if strings.ToLower(fp) != fp {
		t.Fatalf("fingerprint not lowercase hex: %s", fp)
	}
}

func TestRegisteredDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://blog.example.com/post", "example.com"},
		{"https://example.co.uk/x", "example.co.uk"},
		{"https://sub.example.co.uk/x", "example.co.uk"},
		{"not a url at all ::", ""},
	}
	for _, tc := range cases {
		if got := RegisteredDomain(tc.in); got != tc.want {
			t.Fatalf("RegisteredDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
