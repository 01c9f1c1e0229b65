package utils

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*\}\}`)

// Personalize substitutes {{field}} placeholders with values from fields.
// A known field with an empty value is removed; unknown placeholders are
// left as they are.
func Personalize(content string, fields map[string]string) string {
	if !strings.Contains(content, "{{") {
		return content
	}
	return placeholderRe.ReplaceAllStringFunc(content, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		if v, ok := fields[name]; ok {
			return v
		}
		return token
	})
}
