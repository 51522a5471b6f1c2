package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
)

const defaultUserAgent = "apiguard"

// HTTP sends requests with a net/http client. JSON is used for structured
// request bodies. Responses are decoded as JSON when the server says so or
// when an untyped body parses as JSON. Anything else, including a JSON body
// that does not parse, is returned as text.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithClient replaces the underlying client.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout bounds every request, including reading the body. Zero means no
// limit.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		c := *h.client
		c.Timeout = d
		h.client = &c
	}
}

// WithUserAgent sets the User-Agent sent when the request has none.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) { h.userAgent = ua }
}

// NewHTTP returns an HTTP transport.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{client: &http.Client{}, userAgent: defaultUserAgent}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Do performs req. Statuses rejected by req.AcceptStatus yield *StatusError
// with the decoded response attached.
func (h *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.URL == nil {
		return nil, fmt.Errorf("transport: request has no URL")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	hreq.Header.Set("Accept", "application/json, text/plain, */*")
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if h.userAgent != "" {
		hreq.Header.Set("User-Agent", h.userAgent)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	hres, err := h.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, req.URL.Redacted(), err)
	}
	defer hres.Body.Close()

	raw, err := io.ReadAll(hres.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	data := decodeBody(hres.Header.Get("Content-Type"), raw)
	res := &Response{Status: hres.StatusCode, Data: data, Headers: hres.Header}
	if !accepts(req, res.Status) {
		return nil, &StatusError{Method: method, URL: req.URL.Redacted(), Resp: res}
	}
	return res, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	case io.Reader:
		return b, "application/octet-stream", nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("transport: encode body: %w", err)
	}
	return bytes.NewReader(raw), "application/json", nil
}

func decodeBody(header string, raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if header != "" {
		mt, err := contenttype.ParseMediaType(header)
		if err != nil || !isJSON(mt) {
			return string(raw)
		}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func isJSON(mt contenttype.MediaType) bool {
	sub := strings.ToLower(mt.Subtype)
	return sub == "json" || strings.HasSuffix(sub, "+json")
}
