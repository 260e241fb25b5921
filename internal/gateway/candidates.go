package gateway

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var versionedPathRe = regexp.MustCompile(`/(api|v\d+)(/|$)`)

// pathSuffixes are appended to unversioned base URLs, most common shape first.
var pathSuffixes = []string{"", "/api", "/api/v2", "/api/v1", "/v2", "/v1"}

// ValidateBaseURL rejects URLs that cannot belong to a reachable gateway
// deployment: bad syntax, missing host, loopback/private/link-local hosts.
func ValidateBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return nil, fmt.Errorf("%w: non-routable host %q", ErrInvalidBaseURL, host)
		}
	} else if host == "localhost" {
		return nil, fmt.Errorf("%w: non-routable host %q", ErrInvalidBaseURL, host)
	}
	return u, nil
}

// baseCandidates builds the ordered, de-duplicated list of base-URL shapes to
// probe: the original, the alternate scheme, the host without its explicit
// port, each combined with common path suffixes unless the URL already looks
// versioned. The list is capped so variant growth can never blow the attempt
// budget.
func baseCandidates(raw string, limit int) ([]string, error) {
	u, err := ValidateBaseURL(raw)
	if err != nil {
		return nil, err
	}

	roots := []string{rootOf(u)}
	alt := *u
	if u.Scheme == "https" {
		alt.Scheme = "http"
	} else {
		alt.Scheme = "https"
	}
	roots = append(roots, rootOf(&alt))
	if u.Port() != "" {
		noPort := *u
		noPort.Host = u.Hostname()
		roots = append(roots, rootOf(&noPort))
		altNoPort := alt
		altNoPort.Host = alt.Hostname()
		roots = append(roots, rootOf(&altNoPort))
	}

	suffixes := pathSuffixes
	if versionedPathRe.MatchString(u.Path) {
		suffixes = []string{""}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, root := range roots {
		for _, suffix := range suffixes {
			candidate := root + suffix
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func rootOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/")
}

// authVariant is one way of presenting the API key to the upstream.
type authVariant struct {
	// label identifies the variant in audit trails without leaking the key.
	label  string
	header string
	query  string
	bearer bool
	rawAuth bool
}

// authVariants lists the key presentation shapes in probe order. Header
// shapes come first; query parameters are a last resort because they risk
// ending up in upstream access logs.
func authVariants() []authVariant {
	return []authVariant{
		{label: "header:apikey", header: "apikey"},
		{label: "header:apiKey", header: "apiKey"},
		{label: "header:x-api-key", header: "x-api-key"},
		{label: "header:x-api_key", header: "x-api_key"},
		{label: "header:authorization-bearer", bearer: true},
		{label: "header:authorization-raw", rawAuth: true},
		{label: "header:token", header: "token"},
		{label: "header:x-access-token", header: "x-access-token"},
		{label: "query:apikey", query: "apikey"},
		{label: "query:token", query: "token"},
	}
}

// probePolicy decides when the candidate walk stops early. It is shared by
// every logical operation so the short-circuit rules live in one place.
type probePolicy struct {
	maxUpstreamFailures int
	upstreamFailures    int
	sawNon401           bool
	attempts            []Attempt
}

type probeAction int

const (
	actionContinueAuth probeAction = iota // try next auth variant on same base
	actionNextBase                        // abandon this base URL shape
	actionStop                            // abort the whole walk
)

func newProbePolicy() *probePolicy {
	return &probePolicy{maxUpstreamFailures: 2}
}

// observe records one attempt outcome and returns what to do next.
func (p *probePolicy) observe(a Attempt) probeAction {
	p.attempts = append(p.attempts, a)
	switch {
	case a.Status == 401:
		return actionContinueAuth
	case a.Status == 404:
		p.sawNon401 = true
		return actionNextBase
	case a.Status == 502 || a.Status == 504:
		p.sawNon401 = true
		p.upstreamFailures++
		if p.upstreamFailures >= p.maxUpstreamFailures {
			return actionStop
		}
		return actionNextBase
	default:
		p.sawNon401 = true
		return actionNextBase
	}
}

// classify maps the accumulated outcomes to an error once the walk ends
// without a success.
func (p *probePolicy) classify() error {
	if p.upstreamFailures >= p.maxUpstreamFailures {
		return variantErr(ErrUnreachable, "repeated 502/504 from upstream", p.attempts)
	}
	if !p.sawNon401 && len(p.attempts) > 0 {
		return variantErr(ErrUnauthorized, "every auth variant was rejected; check the API key", p.attempts)
	}
	return variantErr(ErrExhausted, "no base URL shape accepted the request", p.attempts)
}
