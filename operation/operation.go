// Package operation declares API operations and executes them: the payload
// is validated, a mock may short-circuit the call, the transport runs, and
// the body is validated against the response declared for its status.
package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/mark3labs/apiguard/catalog"
	"github.com/mark3labs/apiguard/model"
)

// MockResponse is a synthetic result. Zero fields are returned as they are.
type MockResponse struct {
	Status  int
	Data    any
	Headers map[string]string
}

// MockFunc produces a synthetic result for a call. Returning a nil response
// and a nil error declines, and the real transport runs.
type MockFunc func(ctx context.Context, u *url.URL, payload any) (*MockResponse, error)

// Operation declares one endpoint. O is the caller's per-call options type.
// Declarations are built once and are read-only while calls execute.
type Operation[O any] struct {
	Method string
	// URL builds the request URL from the executor's base URL.
	URL func(base *url.URL, opts O) *url.URL
	// PayloadModel validates the value built by Payload.
	PayloadModel *model.Model
	Payload      func(opts O) any
	Headers      func(opts O) map[string]string
	Responses    []catalog.Response
	Mock         MockFunc

	mu   sync.Mutex
	name string
}

// Name returns the diagnostic name, or "".
func (op *Operation[O]) Name() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.name
}

// SetName assigns the diagnostic name and labels the payload and response
// models that have no owner yet. The name is write-once; SetName reports
// false when a different name is already set.
func (op *Operation[O]) SetName(name string) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.name != "" && op.name != name {
		return false
	}
	op.name = name
	if op.PayloadModel != nil {
		op.PayloadModel.SetOperation(name)
	}
	catalog.Label(name, op.Responses)
	return true
}

// Execute runs the operation with e. vopts applies to both payload and
// response validation.
func (op *Operation[O]) Execute(ctx context.Context, e *Executor, opts O, vopts model.Options) (*Result, error) {
	c := call{
		name:      op.Name(),
		method:    op.Method,
		model:     op.PayloadModel,
		responses: op.Responses,
		mock:      op.Mock,
	}
	if c.method == "" {
		c.method = http.MethodGet
	}
	if op.URL != nil {
		c.url = op.URL(e.BaseURL(), opts)
	} else {
		c.url = e.BaseURL()
	}
	if op.Payload != nil {
		c.payload = func() any { return op.Payload(opts) }
	}
	if op.Headers != nil {
		c.headers = op.Headers(opts)
	}
	return e.run(ctx, c, vopts)
}

// Result is a completed call. Body always equals Data.
type Result struct {
	Status  int
	Data    any
	Body    any
	Headers http.Header
	// Mocked is set when a mock produced the result.
	Mocked bool
}

// Decode converts the result data into T through JSON.
func Decode[T any](res *Result) (T, error) {
	var out T
	if res == nil {
		return out, fmt.Errorf("decode: nil result")
	}
	raw, err := json.Marshal(res.Data)
	if err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode into %T: %w", out, err)
	}
	return out, nil
}
