package spec

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/apiguard/catalog"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/schema"
)

// BuildOption configures how a Document is built.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[string]struct{}
	pathRes     []*regexp.Regexp
}

// WithIncludeTags keeps only endpoints that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.includeTags = addTags(c.includeTags, tags)
	}
}

// WithExcludeTags removes endpoints that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.excludeTags = addTags(c.excludeTags, tags)
	}
}

func addTags(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[t] = struct{}{}
	}
	return set
}

// WithMethods keeps only endpoints using one of the given HTTP methods.
func WithMethods(methods []string) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[string]struct{}, len(methods))
			}
			c.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only endpoints whose path matches one of the regular
// expressions. An invalid pattern matches nothing.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// Build converts an OpenAPI v3 document into endpoint declarations.
// Component schemas are converted once and shared between endpoints.
// Recursive references decode as unknown below the first cycle. Build stops
// with ctx.Err() once ctx is done.
func Build(ctx context.Context, doc *openapi3.T, opts ...BuildOption) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	out := &Document{}
	if doc.Info != nil {
		out.Title = safeStr(doc.Info.Title)
		out.Version = safeStr(doc.Info.Version)
		out.Description = safeStr(doc.Info.Description)
	}
	for _, s := range doc.Servers {
		if s != nil {
			out.Servers = append(out.Servers, safeStr(s.URL))
		}
	}

	conv := newConverter()

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := doc.Paths[p]
		if item == nil {
			continue
		}
		if !cfg.allowPath(p) {
			continue
		}

		ops := []struct {
			method string
			op     *openapi3.Operation
		}{
			{http.MethodGet, item.Get},
			{http.MethodPost, item.Post},
			{http.MethodPut, item.Put},
			{http.MethodDelete, item.Delete},
			{http.MethodPatch, item.Patch},
			{http.MethodHead, item.Head},
			{http.MethodOptions, item.Options},
			{http.MethodTrace, item.Trace},
		}
		for _, pair := range ops {
			if pair.op == nil {
				continue
			}
			if len(cfg.methods) > 0 {
				if _, ok := cfg.methods[pair.method]; !ok {
					continue
				}
			}
			tags := sanitizeTags(pair.op.Tags)
			if !allowByTags(tags, cfg) {
				continue
			}
			out.Endpoints = append(out.Endpoints, conv.endpoint(p, pair.method, item, pair.op, tags))
		}
	}

	out.Tags = collectSortedTags(out.Endpoints)
	return out, nil
}

func (c *buildConfig) allowPath(p string) bool {
	if len(c.pathRes) == 0 {
		return true
	}
	for _, re := range c.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

type converter struct {
	cache map[*openapi3.Schema]schema.Schema
	stack map[*openapi3.Schema]bool
}

func newConverter() *converter {
	return &converter{
		cache: make(map[*openapi3.Schema]schema.Schema),
		stack: make(map[*openapi3.Schema]bool),
	}
}

func (c *converter) endpoint(path, method string, item *openapi3.PathItem, op *openapi3.Operation, tags []string) Endpoint {
	id := safeStr(op.OperationID)
	if id == "" {
		id = strings.ToLower(method) + " " + path
	}
	ep := Endpoint{
		ID:          id,
		Method:      method,
		Path:        path,
		Summary:     safeStr(op.Summary),
		Description: safeStr(op.Description),
		Tags:        tags,
		Parameters:  mergeParameters(item.Parameters, op.Parameters),
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if ref := pickMedia(op.RequestBody.Value.Content); ref != nil {
			s := c.convert(ref)
			if !op.RequestBody.Value.Required {
				s = schema.Nullable(s)
			}
			ep.Payload = model.New(nameFor(ref, id+" payload"), s)
		}
	}

	codes := make([]string, 0, len(op.Responses))
	for code := range op.Responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rref := op.Responses[code]
		if rref == nil || rref.Value == nil {
			continue
		}
		status, err := strconv.Atoi(code)
		if err != nil {
			ep.Skipped = append(ep.Skipped, code)
			continue
		}
		name := fmt.Sprintf("%s %d", id, status)
		var s schema.Schema = schema.Unknown()
		if ref := pickMedia(rref.Value.Content); ref != nil {
			s = c.convert(ref)
			name = nameFor(ref, name)
		}
		ep.Responses = append(ep.Responses, catalog.Response{Status: status, Model: model.New(name, s)})
	}
	return ep
}

func (c *converter) convert(ref *openapi3.SchemaRef) schema.Schema {
	if ref == nil || ref.Value == nil {
		return schema.Unknown()
	}
	s := ref.Value
	if built, ok := c.cache[s]; ok {
		return built
	}
	if c.stack[s] {
		return schema.Unknown()
	}
	c.stack[s] = true
	built := c.build(s)
	delete(c.stack, s)
	c.cache[s] = built
	return built
}

func (c *converter) build(s *openapi3.Schema) schema.Schema {
	var out schema.Schema
	switch {
	case len(s.Enum) > 0:
		out = schema.Enum(s.Enum...)
	case len(s.AllOf) > 0:
		members := c.convertAll(s.AllOf)
		if len(s.Properties) > 0 {
			members = append(members, c.object(s))
		}
		out = schema.AllOf(members...)
	case len(s.OneOf) > 0:
		out = schema.OneOf(c.convertAll(s.OneOf)...)
	case len(s.AnyOf) > 0:
		out = schema.OneOf(c.convertAll(s.AnyOf)...)
	default:
		out = c.typed(s)
	}
	if s.Nullable {
		out = schema.Nullable(out)
	}
	return out
}

func (c *converter) typed(s *openapi3.Schema) schema.Schema {
	switch s.Type {
	case openapi3.TypeString:
		return schema.String()
	case openapi3.TypeNumber:
		return schema.Number()
	case openapi3.TypeInteger:
		return schema.Integer()
	case openapi3.TypeBoolean:
		return schema.Boolean()
	case openapi3.TypeArray:
		return schema.ArrayOf(c.convert(s.Items))
	case openapi3.TypeObject, "":
		if len(s.Properties) > 0 {
			return c.object(s)
		}
		if s.Type == openapi3.TypeObject {
			return schema.RecordOf(schema.Unknown())
		}
	}
	return schema.Unknown()
}

func (c *converter) object(s *openapi3.Schema) schema.Schema {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]schema.Prop, 0, len(names))
	for _, name := range names {
		ps := c.convert(s.Properties[name])
		if required[name] {
			props = append(props, schema.Field(name, ps))
		} else {
			props = append(props, schema.Optional(name, ps))
		}
	}
	return schema.Object(props...)
}

func (c *converter) convertAll(refs openapi3.SchemaRefs) []schema.Schema {
	out := make([]schema.Schema, 0, len(refs))
	for _, r := range refs {
		out = append(out, c.convert(r))
	}
	return out
}

// pickMedia prefers JSON media types, then the first type in sorted order.
func pickMedia(content openapi3.Content) *openapi3.SchemaRef {
	if len(content) == 0 {
		return nil
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pick := keys[0]
	for _, k := range keys {
		lower := strings.ToLower(k)
		if lower == "application/json" {
			pick = k
			break
		}
		if strings.Contains(lower, "json") && !strings.Contains(strings.ToLower(pick), "json") {
			pick = k
		}
	}
	if mt := content[pick]; mt != nil {
		return mt.Schema
	}
	return nil
}

// nameFor names a model after its component when ref points at one.
func nameFor(ref *openapi3.SchemaRef, fallback string) string {
	if ref != nil && ref.Ref != "" {
		if i := strings.LastIndex(ref.Ref, "/"); i >= 0 && i < len(ref.Ref)-1 {
			return ref.Ref[i+1:]
		}
	}
	return fallback
}

func mergeParameters(pathLevel, opLevel openapi3.Parameters) []Parameter {
	merged := make(map[string]Parameter)
	for _, list := range []openapi3.Parameters{pathLevel, opLevel} {
		for _, pref := range list {
			if pref == nil || pref.Value == nil {
				continue
			}
			p := Parameter{Name: safeStr(pref.Value.Name), In: safeStr(pref.Value.In), Required: pref.Value.Required}
			merged[paramKey(p.In, p.Name)] = p
		}
	}
	params := make([]Parameter, 0, len(merged))
	for _, p := range merged {
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].In == params[j].In {
			return params[i].Name < params[j].Name
		}
		return params[i].In < params[j].In
	})
	return params
}

func paramKey(in, name string) string { return in + ":" + name }

func safeStr(s string) string { return strings.TrimSpace(s) }

func sanitizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func collectSortedTags(endpoints []Endpoint) []string {
	set := make(map[string]struct{})
	for _, ep := range endpoints {
		for _, t := range ep.Tags {
			set[t] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
