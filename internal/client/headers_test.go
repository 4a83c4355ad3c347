package client

import (
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourneighborhoodchef/veilfetch/internal/fingerprint"
)

func TestBuildHeadersLayering(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Close()

	prof := fingerprint.Profile{
		UserAgent:   "test-agent",
		Platform:    "Windows",
		ClientHints: `"Chromium";v="133"`,
	}
	cfg := c.config()
	h := c.buildHeaders(cfg, prof, map[string]string{
		"Accept":   "application/json",
		"X-Custom": "yes",
	})

	assert.Equal(t, "test-agent", h.Get("User-Agent"))
	assert.Equal(t, "application/json", h.Get("Accept"), "caller override wins")
	assert.Equal(t, "en-US,en;q=0.9", h.Get("Accept-Language"))
	assert.Equal(t, "keep-alive", h.Get("Connection"))
	assert.Equal(t, "yes", h.Get("X-Custom"))

	order := h[http.HeaderOrderKey]
	require.NotEmpty(t, order)
	assert.Equal(t, "User-Agent", order[0])
	assert.Contains(t, order, "X-Custom")
}

func TestBuildHeadersOmitsHintsForPlainProfiles(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Close()

	prof := fingerprint.Profile{UserAgent: "firefox-agent", Platform: "Windows"}
	h := c.buildHeaders(c.config(), prof, nil)

	assert.Empty(t, h.Get("Sec-CH-UA"))
	assert.Empty(t, h.Get("Sec-CH-UA-Mobile"))
	assert.Empty(t, h.Get("Sec-CH-UA-Platform"))
}

func TestCookieHeaderDeterministic(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Close()

	c.mu.Lock()
	c.cookies = map[string]string{"b": "2", "a": "1", "c": "3"}
	c.mu.Unlock()

	assert.Equal(t, "a=1; b=2; c=3", c.cookieHeader())
}

func TestRandomizedOrderKeepsSameSet(t *testing.T) {
	cfg := testConfig()
	cfg.RandomizeHeaders = true
	c := New(cfg, nil)
	defer c.Close()

	prof := fingerprint.Profile{UserAgent: "agent", Platform: "Linux"}
	h := c.buildHeaders(c.config(), prof, nil)
	order := h[http.HeaderOrderKey]

	want := map[string]bool{
		"User-Agent": true, "Accept": true, "Accept-Language": true,
		"Accept-Encoding": true, "Connection": true, "Cache-Control": true,
	}
	require.Len(t, order, len(want))
	for _, k := range order {
		assert.True(t, want[k], "unexpected header %q in order", k)
	}
}
