package utils

import (
	"net/http"
	"net/url"
)

// URLFromRequest creates a URL with the correct scheme and host based on the request.
// It detects HTTPS from either direct TLS connection or X-Forwarded-Proto header,
// and uses X-Forwarded-Host for the hostname when available.
func URLFromRequest(r *http.Request) *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   r.Host,
	}
	if v := r.Header.Get("X-Forwarded-Host"); v != "" {
		u.Host = v
	}
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		u.Scheme = "https"
	}
	return u
}

// AbsoluteURL joins path and query onto the request's public base URL.
func AbsoluteURL(r *http.Request, path string, query url.Values) string {
	u := URLFromRequest(r)
	u.Path = path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
