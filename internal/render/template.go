package render

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-engine/internal/domain"
)

// liquidMarker matches Liquid tag blocks or filtered outputs, neither of
// which plain merge tags use.
var liquidMarker = regexp.MustCompile(`\{%|\{\{[^}]*\|`)

// HasLiquidSyntax reports whether text uses Liquid features beyond simple
// merge tags and needs the full template engine.
func HasLiquidSyntax(text string) bool {
	return liquidMarker.MatchString(text)
}

// TemplateService renders stored template documents with the Liquid template
// language. Parsed templates are cached by a hash of their content, so an
// edited document always parses fresh instead of hitting a stale entry. The
// engine is safe for concurrent use.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[[sha256.Size]byte]*liquid.Template
}

// NewTemplateService creates a template service with the platform's filters.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerFilters()
	return ts
}

func (ts *TemplateService) registerFilters() {
	// {{ first_name | default: "Friend" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ name | upcase_first }}
	ts.engine.RegisterFilter("upcase_first", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	})
}

// Render renders a template with the given bindings, reusing the cached parse
// when the same content was rendered before.
func (ts *TemplateService) Render(templateStr string, bindings map[string]interface{}) (string, error) {
	key := sha256.Sum256([]byte(templateStr))
	if cached, ok := ts.cache.Load(key); ok {
		out, err := cached.(*liquid.Template).Render(bindings)
		if err != nil {
			return "", fmt.Errorf("render template: %w", err)
		}
		return string(out), nil
	}

	tpl, err := ts.engine.ParseTemplate([]byte(templateStr))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	ts.cache.Store(key, tpl)

	out, err := tpl.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return string(out), nil
}

// ContactBindings builds the Liquid binding map for a contact.
func ContactBindings(c *domain.Contact) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	b := map[string]interface{}{
		"email":      c.Email,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
	}
	for key, val := range c.CustomFields {
		if _, taken := b[key]; !taken {
			b[key] = val
		}
	}
	return b
}
