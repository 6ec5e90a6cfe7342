// Package render personalizes campaign content per recipient. Merge-tag
// substitution is a pure function over an immutable token table built from
// the contact; Liquid rendering is available for stored template documents.
package render

import (
	"regexp"
	"strings"

	"github.com/ignite/campaign-engine/internal/domain"
)

var mergeTagRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderMergeTags substitutes {{first_name}}, {{last_name}}, {{email}},
// {{full_name}} and one tag per custom-field key. Unmatched tags are left
// verbatim. Safe on empty text and nil contact.
func RenderMergeTags(text string, c *domain.Contact) string {
	if text == "" {
		return ""
	}
	tags := mergeTagTable(c)
	return mergeTagRegex.ReplaceAllStringFunc(text, func(match string) string {
		key := mergeTagRegex.FindStringSubmatch(match)[1]
		if val, ok := tags[key]; ok {
			return val
		}
		return match
	})
}

// mergeTagTable builds the token table for one contact.
func mergeTagTable(c *domain.Contact) map[string]string {
	if c == nil {
		return nil
	}
	tags := map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
		"full_name":  c.FullName(),
	}
	for key, val := range c.CustomFields {
		// Built-in tags win over colliding custom-field keys
		if _, taken := tags[key]; !taken {
			tags[key] = val
		}
	}
	return tags
}

// InjectPreviewText inserts a hidden preheader right after the opening body
// tag so inbox clients show it as the message preview.
func InjectPreviewText(html, previewText string) string {
	if previewText == "" {
		return html
	}
	div := `<div style="display:none;max-height:0;overflow:hidden;">` + previewText + `</div>`
	if idx := strings.Index(strings.ToLower(html), "<body"); idx != -1 {
		if end := strings.Index(html[idx:], ">"); end != -1 {
			pos := idx + end + 1
			return html[:pos] + div + html[pos:]
		}
	}
	return div + html
}
