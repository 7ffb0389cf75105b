package types

import (
	"encoding/json"
	"net/http"
)

// Response is the record every middleware, handler, and the Dispatcher
// itself produces and the chain threads back out.
type Response struct {
	StatusCode  int
	Headers     http.Header
	ContentType string
	Body        []byte
}

// OK is the sentinel draft response seeded into the first middleware:
// 200, text/plain, body "[]".
func OK() *Response {
	return &Response{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Headers:     make(http.Header),
		Body:        []byte("[]"),
	}
}

// Text builds a plain-text response with the given status and body.
func Text(status int, body string) *Response {
	return &Response{
		StatusCode:  status,
		ContentType: "text/plain",
		Headers:     make(http.Header),
		Body:        []byte(body),
	}
}

// JSON marshals body and sets content-type application/json.
func JSON(status int, body interface{}) *Response {
	encoded, err := json.Marshal(body)
	if err != nil {
		encoded = []byte(`{"error":"failed to encode response"}`)
		status = http.StatusInternalServerError
	}
	return &Response{
		StatusCode:  status,
		ContentType: "application/json",
		Headers:     make(http.Header),
		Body:        encoded,
	}
}

// Redirect builds a 302 response to location via the Location header.
func Redirect(location string) *Response {
	r := &Response{
		StatusCode:  http.StatusFound,
		ContentType: "text/plain",
		Headers:     make(http.Header),
		Body:        []byte{},
	}
	r.Headers.Set("Location", location)
	return r
}
