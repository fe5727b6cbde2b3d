// Package fhir holds the minimal FHIR resource model the validation
// service operates on: a loosely-typed resource plus the registries
// (known types, required fields, status codes) the aspect validators
// consult.
package fhir

// Resource is a decoded FHIR resource. Resources arrive from the source
// server as arbitrary JSON objects; validators inspect them field by field.
type Resource map[string]interface{}

// Type returns the resourceType field, or "" when absent or not a string.
func (r Resource) Type() string {
	rt, _ := r["resourceType"].(string)
	return rt
}

// ID returns the logical id, or "" when absent or not a string.
func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns the named top-level field when it is a string.
func (r Resource) String(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Object returns the named top-level field when it is a JSON object.
func (r Resource) Object(field string) (map[string]interface{}, bool) {
	v, ok := r[field]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// Array returns the named top-level field when it is a JSON array.
func (r Resource) Array(field string) ([]interface{}, bool) {
	v, ok := r[field]
	if !ok {
		return nil, false
	}
	a, ok := v.([]interface{})
	return a, ok
}

// Meta returns the meta object when present.
func (r Resource) Meta() (map[string]interface{}, bool) {
	return r.Object("meta")
}
