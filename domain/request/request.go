// Package request provides the intercepted request descriptor and its classification.
package request

import (
	"net/http"
	"net/url"
	"strings"
)

// Hint is an optional resource-type hint supplied by the caller.
type Hint string

// Resource-type hints that imply a static asset.
const (
	HintNone     Hint = ""
	HintDocument Hint = "document"
	HintScript   Hint = "script"
	HintStyle    Hint = "style"
	HintImage    Hint = "image"
	HintFont     Hint = "font"
	HintManifest Hint = "manifest"
)

// IsStatic reports whether the hint names a static resource type.
func (h Hint) IsStatic() bool {
	switch h {
	case HintScript, HintStyle, HintImage, HintFont, HintManifest:
		return true
	default:
		return false
	}
}

// Request is an intercepted outbound request.
type Request struct {
	// Method is the HTTP method. Empty is treated as GET.
	Method string `json:"method"`

	// URL is the absolute request URL.
	URL string `json:"url"`

	// Header holds the request headers.
	Header http.Header `json:"header,omitempty"`

	// Body is the request payload, if any.
	Body []byte `json:"body,omitempty"`

	// Hint is an optional resource-type hint.
	Hint Hint `json:"hint,omitempty"`
}

// New creates a request descriptor for the given method and URL.
func New(method, rawURL string) Request {
	return Request{Method: method, URL: rawURL, Header: make(http.Header)}
}

// NormalizedMethod returns the upper-cased method, defaulting to GET.
func (r Request) NormalizedMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// IsReadOnly reports whether the request can be answered from a cache.
func (r Request) IsReadOnly() bool {
	m := r.NormalizedMethod()
	return m == http.MethodGet || m == http.MethodHead
}

// Path returns the URL path, or "/" when the URL cannot be parsed.
func (r Request) Path() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// Key derives the cache key for the request from its method and normalized URL.
// Two requests with equal keys are served by the same cache entry.
func (r Request) Key() string {
	return r.NormalizedMethod() + " " + NormalizeURL(r.URL)
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	c := r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

// NormalizeURL lowercases scheme and host, drops default ports and fragments,
// and sorts query parameters by name. Unparseable input is returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		// Encode orders parameters by name and keeps the order of repeated
		// values, which backends may treat as significant.
		u.RawQuery = u.Query().Encode()
	}

	return u.String()
}
