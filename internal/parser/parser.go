// Package parser encodes and decodes the document wire format stored in the
// remote key-value store. Three generations of payloads exist in the wild and
// the decoder accepts all of them: the modern JSON object, a raw HTML string
// from the old rich-text editor, and a raw plain-text string.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/laguz/internal/models"
)

// PlaceholderTitle is used when no title can be derived from the contents.
const PlaceholderTitle = "Untitled"

// maxTitleLen is the rune length a derived title is truncated to.
const maxTitleLen = 30

// blockCloseRe recognizes a block-level closing tag, which is what marks a
// raw string as legacy rich-text rather than plain text.
var blockCloseRe = regexp.MustCompile(`(?i)</(p|div|h[1-6]|ul|ol|li|blockquote|pre|table)>`)

// wireDocument is the modern JSON shape. isRichText predates the format
// field and is still honored on decode.
type wireDocument struct {
	Title        string   `json:"title"`
	Contents     string   `json:"contents"`
	Tags         []string `json:"tags,omitempty"`
	Format       string   `json:"format,omitempty"`
	IsRichText   *bool    `json:"isRichText,omitempty"`
	LastModified int64    `json:"lastModified,omitempty"`
}

// Encode serializes a document to its wire representation.
func Encode(d *models.Document) (string, error) {
	w := wireDocument{
		Title:        d.Title,
		Contents:     d.Contents,
		Tags:         d.Tags,
		Format:       string(d.Format),
		LastModified: d.LastModified,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("parser: encode %s: %w", d.Key, err)
	}
	return string(data), nil
}

// Decode parses a raw payload read from the remote store under key. The
// decoder variants are tried in order: structured JSON, legacy HTML, legacy
// plain text. The last variant accepts anything, so Decode only fails on a
// JSON object it cannot unmarshal into the wire shape.
func Decode(key, raw string) (*models.Document, error) {
	if doc, ok, err := decodeJSON(key, raw); ok || err != nil {
		return doc, err
	}
	if doc, ok := decodeHTML(key, raw); ok {
		return doc, nil
	}
	return decodePlain(key, raw), nil
}

func decodeJSON(key, raw string) (*models.Document, bool, error) {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false, nil
	}
	var w wireDocument
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return nil, false, fmt.Errorf("parser: decode %s: %w", key, err)
	}

	format := models.FormatMarkdown
	switch {
	case w.Format != "":
		format = models.Format(w.Format)
	case w.IsRichText != nil && *w.IsRichText:
		format = models.FormatRichText
	}

	title := w.Title
	if title == "" {
		title = DeriveTitle(w.Contents)
	}

	return &models.Document{
		Key:          key,
		Title:        title,
		Contents:     w.Contents,
		Tags:         w.Tags,
		Format:       format,
		LastModified: w.LastModified,
	}, true, nil
}

func decodeHTML(key, raw string) (*models.Document, bool) {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if !strings.HasPrefix(trimmed, "<") || !blockCloseRe.MatchString(raw) {
		return nil, false
	}
	return &models.Document{
		Key:      key,
		Title:    DeriveTitle(raw),
		Contents: raw,
		Format:   models.FormatRichText,
	}, true
}

func decodePlain(key, raw string) *models.Document {
	return &models.Document{
		Key:      key,
		Title:    DeriveTitle(raw),
		Contents: raw,
		Format:   models.FormatMarkdown,
	}
}

// DeriveTitle builds a display title from document contents: the first line
// with any leading run of '#' and following whitespace stripped, truncated to
// 30 runes with an ellipsis. Empty contents yield the placeholder title.
func DeriveTitle(contents string) string {
	line := contents
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "#")
	line = strings.TrimSpace(line)

	if line == "" {
		return PlaceholderTitle
	}
	runes := []rune(line)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "…"
	}
	return line
}
