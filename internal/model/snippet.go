// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Snippet is the shared document at the heart of the application: one piece
// of code, one language, one protection flag, edited collaboratively by
// everyone holding the link.
//
// The `json:"..."` tags tell Go's encoding/json package how to serialize/deserialize
// this struct to/from JSON. This is called a "struct tag" — metadata attached to fields.
//
// For example, when we marshal a Snippet to JSON:
//
//	snippet := Snippet{ID: "abc", Language: "go"}
//	json.Marshal(snippet) → {"id":"abc","language":"go",...}
//
// When Protected is true the code content is read-only: update requests that
// touch Code are rejected. Language and the flag itself stay mutable —
// protection guards the content, not the metadata.
type Snippet struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnippetPatch is a partial update to a snippet. Pointer fields distinguish
// "field omitted" (nil) from "field explicitly set to its zero value"
// (pointer to "" or false). Only non-nil fields are applied.
//
// WHY POINTERS?
// JSON has no way to tell {"code":""} apart from {} after decoding into
// plain string fields — both leave Code == "". With *string, an omitted
// field decodes to nil and an empty one to a pointer to "". The protection
// rule depends on this distinction: clearing a protected snippet's code
// must be rejected, while a patch that never mentions code must pass.
type SnippetPatch struct {
	Code      *string `json:"code,omitempty"`
	Language  *string `json:"language,omitempty"`
	Protected *bool   `json:"protected,omitempty"`
}
