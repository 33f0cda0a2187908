package paperless

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document, tag or custom field does not exist.
var ErrNotFound = errors.New("not found")

// Category selects a named-object collection for id lookups.
type Category string

const (
	CategoryTags         Category = "tags"
	CategoryCustomFields Category = "custom_fields"
)

// CustomFieldValue is one custom field instance attached to a document.
// Value is kept as raw JSON: paperless stores strings, numbers, dates,
// booleans or null depending on the field's data type.
type CustomFieldValue struct {
	Field int             `json:"field"`
	Value json.RawMessage `json:"value"`
}

// StringValue encodes s as a custom field value.
func StringValue(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Document is the subset of GET /api/documents/{id}/ used for processing.
type Document struct {
	ID           int                `json:"id"`
	Title        string             `json:"title"`
	Content      string             `json:"content"`
	Tags         []int              `json:"tags"`
	CustomFields []CustomFieldValue `json:"custom_fields"`
}

// DocumentPatch is the PATCH /api/documents/{id}/ body. All three fields are
// replaced wholesale by paperless.
type DocumentPatch struct {
	Title        string             `json:"title"`
	Tags         []int              `json:"tags"`
	CustomFields []CustomFieldValue `json:"custom_fields"`
}

type idName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type page[T any] struct {
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

type documentsResponse struct {
	All []int `json:"all"`
}

// StatusError is returned when paperless answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}
