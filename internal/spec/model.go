// Package spec loads OpenAPI documents and turns their operations into
// response catalogs and payload models the executor can run.
package spec

import (
	"github.com/mark3labs/apiguard/catalog"
	"github.com/mark3labs/apiguard/model"
)

// Document is the set of operations declared by one OpenAPI document.
type Document struct {
	Title       string
	Version     string
	Description string
	Servers     []string
	Tags        []string
	Endpoints   []Endpoint
}

// Endpoint is one declared operation.
type Endpoint struct {
	// ID is the operationId, or "<method> <path>" when the document has none.
	ID          string
	Method      string
	Path        string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	// Payload validates the JSON request body. Nil when none is declared.
	Payload *model.Model
	// Responses holds one declaration per concrete status code.
	Responses []catalog.Response
	// Skipped lists response keys without a concrete status ("default", "4XX").
	Skipped []string
}

// Parameter is a path, query, header or cookie parameter.
type Parameter struct {
	Name     string
	In       string
	Required bool
}

// Endpoint finds an endpoint by ID.
func (d *Document) Endpoint(id string) (*Endpoint, bool) {
	for i := range d.Endpoints {
		if d.Endpoints[i].ID == id {
			return &d.Endpoints[i], true
		}
	}
	return nil, false
}
