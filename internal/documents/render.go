package documents

import (
	"encoding/json"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes named placeholders in a document-type template
// with values from the request payload. Unknown placeholders render empty.
func RenderTemplate(template string, data json.RawMessage) string {
	fields := map[string]string{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &fields)
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return fields[key]
	})
}
