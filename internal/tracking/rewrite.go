package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefRegex = regexp.MustCompile(`href=["']([^"']+)["']`)

// skipLink reports whether a link must not be routed through tracking.
func skipLink(link string) bool {
	lower := strings.ToLower(link)
	return strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "#") ||
		strings.Contains(lower, "/unsubscribe")
}

// rewriteLinks replaces every trackable href with a tracking-redirect URL
// carrying the original destination as a query parameter.
func rewriteLinks(html, baseURL, token string) string {
	return hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
		link := hrefRegex.FindStringSubmatch(match)[1]
		if skipLink(link) {
			return match
		}
		tracked := fmt.Sprintf("%s/track/click/%s?url=%s", baseURL, token, url.QueryEscape(link))
		return fmt.Sprintf(`href="%s"`, tracked)
	})
}

// injectPixel inserts the 1x1 open pixel immediately before the closing body
// tag, or appends it if no body tag is present.
func injectPixel(html, baseURL, token string) string {
	pixel := fmt.Sprintf(`<img src="%s/track/open/%s" width="1" height="1" alt="" style="display:block" />`, baseURL, token)
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx != -1 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}
