package client

import (
	"sort"
	"strings"

	http "github.com/bogdanfinn/fhttp"

	"github.com/yourneighborhoodchef/veilfetch/internal/fingerprint"
)

// baseHeaderOrder is the wire order browsers emit these headers in.
// fhttp honors it through the HeaderOrderKey pseudo-header.
var baseHeaderOrder = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
	"Accept-Encoding",
	"Connection",
	"Cache-Control",
	"Sec-CH-UA",
	"Sec-CH-UA-Mobile",
	"Sec-CH-UA-Platform",
	"Cookie",
}

var standardHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept-Encoding": "gzip, deflate, br",
	"Connection":      "keep-alive",
	"Cache-Control":   "max-age=0",
}

// buildHeaders layers, in precedence order: fingerprint identity
// headers, standard browser headers, caller overrides, and the stored
// session cookies. The emission order is browser-like unless
// RandomizeHeaders shuffles it.
func (c *Client) buildHeaders(cfg Config, prof fingerprint.Profile, overrides map[string]string) http.Header {
	h := http.Header{}

	for k, v := range prof.Headers() {
		h.Set(k, v)
	}
	for k, v := range standardHeaders {
		h.Set(k, v)
	}
	for k, v := range overrides {
		h.Set(k, v)
	}
	if cfg.PersistCookies {
		if cookie := c.cookieHeader(); cookie != "" {
			h.Set("Cookie", cookie)
		}
	}

	order := headerOrderFor(h)
	if cfg.RandomizeHeaders {
		c.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	h[http.HeaderOrderKey] = order
	return h
}

// headerOrderFor returns baseHeaderOrder restricted to the headers
// actually present, with any extra caller headers appended in sorted
// order.
func headerOrderFor(h http.Header) []string {
	present := make(map[string]bool, len(h))
	for k := range h {
		present[k] = true
	}

	order := make([]string, 0, len(h))
	for _, k := range baseHeaderOrder {
		if present[http.CanonicalHeaderKey(k)] {
			order = append(order, k)
			delete(present, http.CanonicalHeaderKey(k))
		}
	}

	extras := make([]string, 0, len(present))
	for k := range present {
		if k == http.HeaderOrderKey || k == http.PHeaderOrderKey {
			continue
		}
		extras = append(extras, k)
	}
	sort.Strings(extras)
	return append(order, extras...)
}

// cookieHeader renders the session cookie map as a Cookie header value
// with deterministic key order.
func (c *Client) cookieHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(c.cookies))
	for name := range c.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(c.cookies[name])
	}
	return b.String()
}
