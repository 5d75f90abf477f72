package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/jrsteele09/onche-connect/interaction"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

// PageData is what the interaction templates are executed with
type PageData struct {
	interaction.Page
	AppName string
}

// TemplateRenderer renders the interaction forms from the embedded templates
type TemplateRenderer struct {
	appName   string
	templates map[string]*template.Template
}

var _ interaction.Renderer = (*TemplateRenderer)(nil)

// NewTemplateRenderer parses every interaction template up front
func NewTemplateRenderer(appName string) (*TemplateRenderer, error) {
	r := &TemplateRenderer{appName: appName, templates: make(map[string]*template.Template)}
	for _, name := range []string{interaction.PageLogin, interaction.PageOTP, interaction.PageConsent} {
		tmpl, err := ParseTemplate(name + ".html")
		if err != nil {
			return nil, errors.Wrapf(err, "[NewTemplateRenderer] parse %s template", name)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render writes the page with status. Nothing is written until the template has executed.
func (t *TemplateRenderer) Render(w http.ResponseWriter, status int, page interaction.Page) {
	tmpl, ok := t.templates[page.Name]
	if !ok {
		log.Error().Str("page", page.Name).Msg("Unknown page template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, PageData{Page: page, AppName: t.appName}); err != nil {
		log.Err(err).Str("page", page.Name).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Err(err).Str("page", page.Name).Msg("Failed to write page")
	}
}
