package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// plainText strips every tag and decodes entities, leaving text for JSON payloads and e-mail bodies.
// Only use it with a strict policy; markup-preserving output must stay escaped.
func plainText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}
