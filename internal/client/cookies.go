package client

import (
	http "github.com/bogdanfinn/fhttp"
)

// storeCookies captures Set-Cookie values into the session map,
// overwriting per name. This is deliberately not a cookie jar: no
// domain/path/expiry semantics, just scoped session state.
func (c *Client) storeCookies(resp *http.Response) {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range cookies {
		c.cookies[ck.Name] = ck.Value
	}
}

// ClearCookies drops all stored session cookies.
func (c *Client) ClearCookies() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = make(map[string]string)
}

// Cookies returns a copy of the stored session cookies.
func (c *Client) Cookies() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.cookies))
	for k, v := range c.cookies {
		out[k] = v
	}
	return out
}
