package types

import "net/http"

// Request is the normalized, already-classified representation of an
// incoming HTTP call from Slack. RequestParser is the only producer.
type Request struct {
	Kind RequestKind

	RawBody []byte

	// Headers uses net/http's canonicalized, case-insensitive multi-value
	// map, matching "case-insensitive mapping from name to ordered
	// sequence of values".
	Headers http.Header

	// ParsedPayload is the kind-specific decoded body: a
	// map[string]interface{} for JSON, payload-field, and plain
	// form-encoded requests, or the url.Values query parameters for
	// OAuthStart/OAuthCallback.
	ParsedPayload interface{}

	Context *Context
}

// PayloadMap returns ParsedPayload as a map[string]interface{}, or nil if the
// payload isn't map-shaped (e.g. OAuthStart/OAuthCallback, whose data lives
// in query parameters instead).
func (r *Request) PayloadMap() map[string]interface{} {
	m, _ := r.ParsedPayload.(map[string]interface{})
	return m
}
