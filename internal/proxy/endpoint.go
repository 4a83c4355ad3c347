package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Endpoint is one upstream proxy. Health counters are mutated only by
// the Pool that owns the endpoint.
type Endpoint struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
	Country  string

	LastUsedAt   time.Time
	FailureCount int
	SuccessCount int
}

// Key identifies an endpoint for dedup and eviction. Credentials are
// deliberately excluded: the same host behind different credentials is
// still the same proxy.
func (e *Endpoint) Key() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL renders the endpoint in the form tls-client's WithProxyUrl
// expects, including credentials when present.
func (e *Endpoint) URL() string {
	hostport := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	if e.Username != "" {
		return fmt.Sprintf("%s://%s@%s", e.Scheme, url.UserPassword(e.Username, e.Password).String(), hostport)
	}
	return e.Scheme + "://" + hostport
}

// Parse accepts "scheme://[user:pass@]host:port" or bare "host:port"
// (scheme defaults to http). It returns an error for anything it cannot
// make sense of; callers drop such entries rather than failing.
func Parse(raw string) (*Endpoint, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty proxy string")
	}

	var u *url.URL
	var err error
	if hasScheme(raw) {
		u, err = url.Parse(raw)
	} else {
		u, err = url.Parse("http://" + raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("proxy %q has no host", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("proxy %q has invalid port", raw)
	}

	e := &Endpoint{Scheme: u.Scheme, Host: host, Port: port}
	if u.User != nil {
		e.Username = u.User.Username()
		e.Password, _ = u.User.Password()
	}
	return e, nil
}

func hasScheme(raw string) bool {
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == ':' {
			return i+2 < len(raw) && raw[i+1] == '/' && raw[i+2] == '/'
		}
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return false
}
