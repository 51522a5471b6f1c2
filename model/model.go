// Package model binds a schema to a diagnostic name and validates values
// against it, reporting every outcome on an events.Emitter.
package model

import (
	"sync"

	"github.com/mark3labs/apiguard/schema"
)

// Model is a named schema. The owning operation is a diagnostic label set
// once while the API surface is wired, before any call executes.
type Model struct {
	Name   string
	Schema schema.Schema

	mu        sync.RWMutex
	operation string
}

// New returns a model named name wrapping s.
func New(name string, s schema.Schema) *Model {
	return &Model{Name: name, Schema: s}
}

// Operation returns the owning operation label, or "".
func (m *Model) Operation() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.operation
}

// SetOperation labels the model with its owning operation. The label is
// write-once: it reports false, leaving the label untouched, when a
// different operation already owns the model.
func (m *Model) SetOperation(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.operation != "" && m.operation != name {
		return false
	}
	m.operation = name
	return true
}

// WithOperation returns a copy of m labelled with name, sharing its schema.
// Resolution uses it so shared models are never relabelled at call time.
func (m *Model) WithOperation(name string) *Model {
	if m.Operation() == name {
		return m
	}
	return &Model{Name: m.Name, Schema: m.Schema, operation: name}
}

// Options configures one validation. It is passed explicitly on every call.
type Options struct {
	// ThrowErrors turns validation failures into returned errors.
	ThrowErrors bool
	// Debug logs validation outcomes.
	Debug bool
	// StrictTypes detects and strips fields the schema does not declare.
	StrictTypes bool
}

// Override holds per-call overrides; nil fields keep the base value.
type Override struct {
	ThrowErrors *bool
	Debug       *bool
	StrictTypes *bool
}

// Merge applies o on top of base.
func (base Options) Merge(o Override) Options {
	if o.ThrowErrors != nil {
		base.ThrowErrors = *o.ThrowErrors
	}
	if o.Debug != nil {
		base.Debug = *o.Debug
	}
	if o.StrictTypes != nil {
		base.StrictTypes = *o.StrictTypes
	}
	return base
}
