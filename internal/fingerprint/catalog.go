package fingerprint

import (
	"fmt"
	"math/rand"
	"strings"
)

func chromeBrands(version string) string {
	return fmt.Sprintf(
		`"Not:A-Brand";v="24", "Chromium";v="%s", "Google Chrome";v="%s"`,
		version, version,
	)
}

func edgeBrands(version string) string {
	return fmt.Sprintf(
		`"Not:A-Brand";v="24", "Chromium";v="%s", "Microsoft Edge";v="%s"`,
		version, version,
	)
}

// builtinProfiles returns the seed catalog. The pool is never empty:
// NewPool always starts from these.
func builtinProfiles() []Profile {
	return []Profile{
		{
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
			Platform:    "Windows",
			ClientHints: chromeBrands("133"),
		},
		{
			UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
			Platform:    "macOS",
			ClientHints: chromeBrands("133"),
		},
		{
			UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36",
			Platform:    "Linux",
			ClientHints: chromeBrands("132"),
		},
		{
			UserAgent:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Mobile Safari/537.36",
			Platform:    "Android",
			Mobile:      true,
			ClientHints: chromeBrands("133"),
		},
		{
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36 Edg/133.0.0.0",
			Platform:    "Windows",
			ClientHints: edgeBrands("133"),
		},
		// Firefox and Safari identities send no client hints.
		{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
			Platform:  "Windows",
		},
		{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:135.0) Gecko/20100101 Firefox/135.0",
			Platform:  "macOS",
		},
		{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			Platform:  "macOS",
		},
		{
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
			Platform:  "iOS",
			Mobile:    true,
		},
	}
}

// generateProfile produces one randomized but plausible identity. The
// Sec-CH-UA version always matches the Chrome/ token of the UA string
// so the fingerprint stays internally consistent.
func generateProfile(rng *rand.Rand) Profile {
	major := 125 + rng.Intn(12)
	switch rng.Intn(4) {
	case 0: // Android Chrome
		android := 11 + rng.Intn(4)
		ua := fmt.Sprintf(
			"Mozilla/5.0 (Linux; Android %d; SM-A%03d) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.0 Mobile Safari/537.36",
			android, 100+rng.Intn(500), major, rng.Intn(6500),
		)
		return Profile{UserAgent: ua, Platform: "Android", Mobile: true, ClientHints: secCHUAFromUA(ua)}
	case 1: // Windows Chrome
		ua := fmt.Sprintf(
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.0 Safari/537.36",
			major, rng.Intn(6500),
		)
		return Profile{UserAgent: ua, Platform: "Windows", ClientHints: secCHUAFromUA(ua)}
	case 2: // macOS Chrome
		ua := fmt.Sprintf(
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.0 Safari/537.36",
			major, rng.Intn(6500),
		)
		return Profile{UserAgent: ua, Platform: "macOS", ClientHints: secCHUAFromUA(ua)}
	default: // Windows Firefox, no client hints
		rv := 118 + rng.Intn(20)
		ua := fmt.Sprintf(
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:%d.0) Gecko/20100101 Firefox/%d.0",
			rv, rv,
		)
		return Profile{UserAgent: ua, Platform: "Windows"}
	}
}

// secCHUAFromUA derives the Sec-CH-UA brand list from the Chrome/ token
// embedded in the UA string.
func secCHUAFromUA(ua string) string {
	const fallback = "133"
	ver := fallback
	if idx := strings.Index(ua, "Chrome/"); idx != -1 {
		rest := ua[idx+7:]
		if j := strings.IndexAny(rest, ". "); j != -1 {
			ver = rest[:j]
		}
	}
	return chromeBrands(ver)
}
