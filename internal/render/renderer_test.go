package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

func TestRenderMergeTags(t *testing.T) {
	c := &domain.Contact{
		Email:     "a@x.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}

	assert.Equal(t, "Ada <a@x.com>", RenderMergeTags("{{first_name}} <{{email}}>", c))
	assert.Equal(t, "Hi Ada Lovelace", RenderMergeTags("Hi {{full_name}}", c))
}

func TestRenderMergeTagsUnmatchedLeftVerbatim(t *testing.T) {
	c := &domain.Contact{Email: "a@x.com"}
	assert.Equal(t, "Hello {{missing}}", RenderMergeTags("Hello {{missing}}", c))
}

func TestRenderMergeTagsCustomFields(t *testing.T) {
	c := &domain.Contact{
		Email:        "a@x.com",
		CustomFields: map[string]string{"company": "Acme", "email": "spoof@x.com"},
	}

	assert.Equal(t, "Acme", RenderMergeTags("{{company}}", c))
	// Built-in tags win over colliding custom fields
	assert.Equal(t, "a@x.com", RenderMergeTags("{{email}}", c))
}

func TestRenderMergeTagsFullNameTrimmed(t *testing.T) {
	c := &domain.Contact{FirstName: "Ada"}
	assert.Equal(t, "Ada", RenderMergeTags("{{full_name}}", c))
}

func TestRenderMergeTagsEmptyAndNil(t *testing.T) {
	assert.Equal(t, "", RenderMergeTags("", &domain.Contact{}))
	assert.Equal(t, "{{first_name}}", RenderMergeTags("{{first_name}}", nil))
}

func TestRenderMergeTagsWhitespaceInsideTag(t *testing.T) {
	c := &domain.Contact{FirstName: "Ada"}
	assert.Equal(t, "Ada", RenderMergeTags("{{ first_name }}", c))
}

func TestInjectPreviewText(t *testing.T) {
	html := `<html><body><p>hi</p></body></html>`
	out := InjectPreviewText(html, "Sale today")
	assert.Contains(t, out, `<body><div style="display:none`)
	assert.Contains(t, out, "Sale today")

	// No body tag: prepended
	out = InjectPreviewText("<p>hi</p>", "x")
	assert.True(t, len(out) > 0 && out[0] == '<')
	assert.Contains(t, out, "display:none")

	// Empty preview is a no-op
	assert.Equal(t, html, InjectPreviewText(html, ""))
}

func TestTemplateServiceRender(t *testing.T) {
	ts := NewTemplateService()
	c := &domain.Contact{FirstName: "", CustomFields: map[string]string{"plan": "pro"}}

	tpl := `Hello {{ first_name | default: "Friend" }}, plan={{ plan }}`
	out, err := ts.Render(tpl, ContactBindings(c))
	require.NoError(t, err)
	assert.Equal(t, "Hello Friend, plan=pro", out)

	// Cached parse renders with fresh bindings
	out, err = ts.Render(tpl, ContactBindings(&domain.Contact{FirstName: "Ada"}))
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, plan=", out)
}

func TestTemplateServiceEditedContentRendersFresh(t *testing.T) {
	ts := NewTemplateService()
	b := ContactBindings(&domain.Contact{FirstName: "Ada"})

	out, err := ts.Render(`v1 {{ first_name }}`, b)
	require.NoError(t, err)
	assert.Equal(t, "v1 Ada", out)

	// Same document edited between renders must not hit the old parse
	out, err = ts.Render(`v2 {{ first_name }}`, b)
	require.NoError(t, err)
	assert.Equal(t, "v2 Ada", out)
}

func TestTemplateServiceParseError(t *testing.T) {
	ts := NewTemplateService()
	_, err := ts.Render(`{% if %}`, nil)
	assert.Error(t, err)
}
