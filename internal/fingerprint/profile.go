package fingerprint

// Profile is a synthetic browser identity. The User-Agent and the
// Sec-CH-UA client hints are correlated: hints are only populated for
// Chromium-family identities, and Headers never emits hints for a
// profile that lacks them.
type Profile struct {
	UserAgent string
	Platform  string
	Mobile    bool

	// ClientHints holds the Sec-CH-UA brand list. Empty for browsers
	// that do not send client hints (Firefox, Safari).
	ClientHints string
}

// hasClientHints reports whether the profile carries correlated
// Sec-CH-UA data.
func (p Profile) hasClientHints() bool {
	return p.ClientHints != ""
}

// Headers renders the identity headers for the profile: the User-Agent
// plus, only when the profile carries client-hint data, the three
// correlated Sec-CH-UA headers.
func (p Profile) Headers() map[string]string {
	h := map[string]string{
		"User-Agent": p.UserAgent,
	}
	if !p.hasClientHints() {
		return h
	}
	mobile := "?0"
	if p.Mobile {
		mobile = "?1"
	}
	h["Sec-CH-UA"] = p.ClientHints
	h["Sec-CH-UA-Mobile"] = mobile
	h["Sec-CH-UA-Platform"] = `"` + p.Platform + `"`
	return h
}
