package operation

import (
	"context"
	"net/url"
	"strings"

	"github.com/mark3labs/apiguard/model"
)

// AddPath returns a copy of u with parts appended to its path, joined by
// exactly one slash.
func AddPath(u *url.URL, parts ...string) *url.URL {
	out := *u
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			segments = append(segments, p)
		}
	}
	if len(segments) == 0 {
		return &out
	}
	out.Path = strings.TrimRight(out.Path, "/") + "/" + strings.Join(segments, "/")
	out.RawPath = ""
	return &out
}

// AddEscapedPath appends an already percent-encoded path to u. Encoded
// slashes stay inside their segment. A path that does not unescape is
// appended verbatim.
func AddEscapedPath(u *url.URL, escaped string) *url.URL {
	out := *u
	escaped = strings.Trim(escaped, "/")
	if escaped == "" {
		return &out
	}
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return AddPath(u, escaped)
	}
	out.Path = strings.TrimRight(u.Path, "/") + "/" + decoded
	out.RawPath = strings.TrimRight(u.EscapedPath(), "/") + "/" + escaped
	return &out
}

// Client fans one executor out across named resources and holds the
// validation defaults calls start from.
type Client struct {
	exec     *Executor
	defaults model.Options
}

// NewClient returns a client over exec.
func NewClient(exec *Executor, defaults model.Options) *Client {
	return &Client{exec: exec, defaults: defaults}
}

// Executor returns the client's executor.
func (c *Client) Executor() *Executor { return c.exec }

// Defaults returns the validation defaults.
func (c *Client) Defaults() model.Options { return c.defaults }

// Resource groups operations under basePath, relative to the client's base URL.
func (c *Client) Resource(name, basePath string) *Resource {
	return &Resource{
		Name:     name,
		BasePath: basePath,
		client:   c,
		exec:     c.exec.WithBase(AddPath(c.exec.BaseURL(), basePath)),
	}
}

// Resource is a named group of operations sharing a base path.
type Resource struct {
	Name     string
	BasePath string

	client *Client
	exec   *Executor
}

// Endpoint is an operation bound to a resource.
type Endpoint[O any] struct {
	Op       *Operation[O]
	resource *Resource
}

// Register names op "<resource>.<name>" and binds it to r. Registration
// happens while wiring the API surface, before any call.
func Register[O any](r *Resource, name string, op *Operation[O]) *Endpoint[O] {
	full := name
	if r.Name != "" {
		full = r.Name + "." + name
	}
	if !op.SetName(full) {
		r.client.exec.logger.Warn("operation already registered under another name",
			"operation", op.Name(), "requested", full)
	}
	return &Endpoint[O]{Op: op, resource: r}
}

// Call executes the endpoint with the client defaults merged with override.
func (ep *Endpoint[O]) Call(ctx context.Context, opts O, override model.Override) (*Result, error) {
	vopts := ep.resource.client.defaults.Merge(override)
	return ep.Op.Execute(ctx, ep.resource.exec, opts, vopts)
}
