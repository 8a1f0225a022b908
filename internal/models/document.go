// Package models defines the domain types for Laguz.
package models

import "strings"

// Format identifies how a document's contents should be interpreted.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatRichText Format = "richtext"
)

// KeySuffix is appended to a title to form the remote store key.
const KeySuffix = ".md"

// Document is one editable document as held in memory and in the cache.
// LastModified is a Unix timestamp in milliseconds; 0 marks a legacy record
// with undefined recency.
type Document struct {
	Key          string   `json:"key"`
	Title        string   `json:"title"`
	Contents     string   `json:"contents"`
	Tags         []string `json:"tags,omitempty"`
	Format       Format   `json:"format"`
	LastModified int64    `json:"last_modified,omitempty"`
}

// KeyForTitle derives the remote store key for a title. The suffix is only
// appended when not already present, so a title that is itself a key maps to
// the same key.
func KeyForTitle(title string) string {
	if strings.HasSuffix(title, KeySuffix) {
		return title
	}
	return title + KeySuffix
}

// Clone returns a deep copy so callers can mutate drafts without aliasing
// the authoritative list.
func (d *Document) Clone() *Document {
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	return &c
}
