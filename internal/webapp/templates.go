// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package webapp

import (
	"embed"
	"html/template"
	"io"

	"github.com/samber/oops"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

// PageData carries everything the page templates render.
type PageData struct {
	Title       string
	Username    string
	LoginFailed string // "email", "password", or empty
	EmailTaken  bool
}

// Renderer renders the embedded HTML templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.gohtml")
	if err != nil {
		return nil, oops.Code("TEMPLATE_PARSE_FAILED").
			With("operation", "parse embedded templates").
			Wrap(err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named page template.
func (r *Renderer) Render(w io.Writer, page string, data PageData) error {
	if err := r.tmpl.ExecuteTemplate(w, page, data); err != nil {
		return oops.Code("TEMPLATE_RENDER_FAILED").
			With("page", page).
			Wrap(err)
	}
	return nil
}
