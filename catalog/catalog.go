// Package catalog resolves an observed HTTP status to the response
// declaration whose model must validate the body.
package catalog

import (
	"sort"
	"strings"

	"github.com/mark3labs/apiguard/apierrors"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/schema"
)

// Response declares that an operation may answer with Status and a body
// matching Model.
type Response struct {
	Status int
	Model  *model.Model
}

// Catalog holds the responses declared for one operation together with the
// global responses shared by every operation of a client.
type Catalog struct {
	Operation string
	Declared  []Response
	Global    []Response
}

// Resolve picks the declaration for status. Declared responses come before
// global ones. When several declarations share the status, their schemas are
// intersected: the body must satisfy all of them.
//
// A status nobody declared yields *apierrors.UnmatchedResponseError.
func (c Catalog) Resolve(status int, body any) (Response, error) {
	var matches []Response
	for _, list := range [][]Response{c.Declared, c.Global} {
		for _, r := range list {
			if r.Status == status && r.Model != nil {
				matches = append(matches, r)
			}
		}
	}

	switch len(matches) {
	case 0:
		return Response{}, &apierrors.UnmatchedResponseError{
			Operation: c.Operation,
			Status:    status,
			Body:      body,
			BodyJSON:  schema.Stringify(body),
		}
	case 1:
		r := matches[0]
		return Response{Status: status, Model: r.Model.WithOperation(c.Operation)}, nil
	}

	names := make([]string, len(matches))
	members := make([]schema.Schema, len(matches))
	for i, r := range matches {
		names[i] = r.Model.Name
		members[i] = r.Model.Schema
	}
	merged := model.New(strings.Join(names, " | "), schema.AllOf(members...))
	merged.SetOperation(c.Operation)
	return Response{Status: status, Model: merged}, nil
}

// Accepts reports whether status is one of the operation's own declarations.
// Global responses do not widen the set a transport lets through.
func (c Catalog) Accepts(status int) bool {
	for _, r := range c.Declared {
		if r.Status == status {
			return true
		}
	}
	return false
}

// Statuses lists the distinct declared statuses in ascending order.
func (c Catalog) Statuses() []int {
	seen := make(map[int]struct{}, len(c.Declared))
	out := make([]int, 0, len(c.Declared))
	for _, r := range c.Declared {
		if _, dup := seen[r.Status]; dup {
			continue
		}
		seen[r.Status] = struct{}{}
		out = append(out, r.Status)
	}
	sort.Ints(out)
	return out
}

// Resolve is Catalog{op, declared, global}.Resolve(status, body).
func Resolve(op string, status int, body any, declared, global []Response) (Response, error) {
	return Catalog{Operation: op, Declared: declared, Global: global}.Resolve(status, body)
}

// Label attaches op to every declared model that has no owner yet. It
// reports the names of models already owned by another operation.
func Label(op string, responses []Response) []string {
	var conflicts []string
	for _, r := range responses {
		if r.Model != nil && !r.Model.SetOperation(op) {
			conflicts = append(conflicts, r.Model.Name)
		}
	}
	return conflicts
}
