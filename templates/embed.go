// Package templates embeds the HTML pages served by the setup endpoint.
package templates

import (
	"embed"
	"html/template"
)

//go:embed *.html
var pages embed.FS

// LoadTemplates parses every embedded page into one template set.
func LoadTemplates() (*template.Template, error) {
	return template.ParseFS(pages, "*.html")
}
