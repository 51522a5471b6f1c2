package spec

import (
	"net/url"
	"sort"
	"strings"

	"github.com/mark3labs/apiguard/operation"
)

// Input carries the per-call values of an Endpoint operation.
type Input struct {
	// Params holds path, query and header parameter values by name.
	Params map[string]string
	Body   any
}

// Operation returns an executable declaration for ep. Path parameters fill
// the path template as single percent-encoded segments. Query parameters
// go to the query string and header parameters become headers. Parameters
// without a value are left out.
func (ep *Endpoint) Operation() *operation.Operation[Input] {
	params := ep.Parameters
	path := ep.Path
	return &operation.Operation[Input]{
		Method: ep.Method,
		URL: func(base *url.URL, in Input) *url.URL {
			u := operation.AddEscapedPath(base, expandPath(path, in.Params))
			q := u.Query()
			for _, p := range params {
				if p.In != "query" {
					continue
				}
				if v, ok := in.Params[p.Name]; ok {
					q.Set(p.Name, v)
				}
			}
			u.RawQuery = q.Encode()
			return u
		},
		PayloadModel: ep.Payload,
		Payload:      func(in Input) any { return in.Body },
		Headers: func(in Input) map[string]string {
			var h map[string]string
			for _, p := range params {
				if p.In != "header" {
					continue
				}
				if v, ok := in.Params[p.Name]; ok {
					if h == nil {
						h = make(map[string]string)
					}
					h[p.Name] = v
				}
			}
			return h
		},
		Responses: ep.Responses,
	}
}

// MissingParams lists required parameters in has no value for, sorted.
func (ep *Endpoint) MissingParams(in Input) []string {
	var missing []string
	for _, p := range ep.Parameters {
		if !p.Required || p.In == "cookie" {
			continue
		}
		if _, ok := in.Params[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// expandPath fills the template and returns it percent-encoded. A value
// never spans segments: "/" is encoded and dot segments are escaped.
func expandPath(template string, params map[string]string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			break
		}
		name := template[open+1 : open+end]
		b.WriteString(escapeLiteral(template[:open]))
		if v, ok := params[name]; ok {
			b.WriteString(escapeSegment(v))
		} else {
			b.WriteString(escapeLiteral(template[open : open+end+1]))
		}
		template = template[open+end+1:]
	}
	b.WriteString(escapeLiteral(template))
	return b.String()
}

func escapeLiteral(s string) string {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func escapeSegment(v string) string {
	if v == "." || v == ".." {
		return strings.Repeat("%2E", len(v))
	}
	return url.PathEscape(v)
}
