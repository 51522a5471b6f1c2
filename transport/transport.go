// Package transport defines the blocking request contract the operation
// executor depends on, and an implementation over net/http.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Request is one outgoing call.
type Request struct {
	Method  string
	URL     *url.URL
	Body    any
	Headers map[string]string
	// AcceptStatus reports whether a status is a regular response. Any other
	// status fails the call with *StatusError. Nil accepts 2xx only.
	AcceptStatus func(status int) bool
}

// Response is what the transport settled on.
type Response struct {
	Status  int
	Data    any
	Headers http.Header
}

// Transport performs requests. Implementations must honour ctx cancellation.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f Func) Do(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// ResponseError is a transport failure that still carries the response the
// server sent.
type ResponseError interface {
	error
	Response() *Response
}

// StatusError is returned when the server answered with a status the
// request's AcceptStatus rejected.
type StatusError struct {
	Method string
	URL    string
	Resp   *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: request failed with status code %d", e.Method, e.URL, e.Resp.Status)
}

// Response returns the rejected response.
func (e *StatusError) Response() *Response { return e.Resp }

func accepts(req *Request, status int) bool {
	if req.AcceptStatus != nil {
		return req.AcceptStatus(status)
	}
	return status >= 200 && status < 300
}
