// Package payload renders review requests into bounded prompt payloads.
package payload

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/mergemate/mergemate/internal/core"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

// ModelProvider selects a provider-specific template variant.
type ModelProvider string

// DefaultProvider is the fallback variant used when no provider-specific
// template exists.
const DefaultProvider ModelProvider = "default"

// TemplateSet holds the parsed prompt templates, keyed by template ID and
// provider. Filenames follow the pattern "id_provider.tmpl".
type TemplateSet struct {
	templates map[core.TemplateID]map[ModelProvider]*template.Template
}

// NewTemplateSet parses all embedded templates.
func NewTemplateSet() (*TemplateSet, error) {
	ts := &TemplateSet{
		templates: make(map[core.TemplateID]map[ModelProvider]*template.Template),
	}

	files, err := templateFiles.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		fileName := file.Name()
		baseName := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		lastUnderscore := strings.LastIndex(baseName, "_")
		if lastUnderscore <= 0 || lastUnderscore == len(baseName)-1 {
			return nil, fmt.Errorf("invalid template filename format: %s (expected 'id_provider.tmpl')", fileName)
		}

		id := core.TemplateID(baseName[:lastUnderscore])
		provider := ModelProvider(baseName[lastUnderscore+1:])

		content, err := templateFiles.ReadFile("templates/" + fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", fileName, err)
		}

		if err := ts.register(id, provider, string(content)); err != nil {
			return nil, fmt.Errorf("failed to register template from %s: %w", fileName, err)
		}
	}

	return ts, nil
}

func (ts *TemplateSet) register(id core.TemplateID, provider ModelProvider, content string) error {
	tmpl, err := template.New(string(id) + "_" + string(provider)).Parse(content)
	if err != nil {
		return fmt.Errorf("could not parse template: %w", err)
	}

	if _, ok := ts.templates[id]; !ok {
		ts.templates[id] = make(map[ModelProvider]*template.Template)
	}
	ts.templates[id][provider] = tmpl
	return nil
}

// Get returns the template for the given ID and provider, falling back to the
// default provider variant.
func (ts *TemplateSet) Get(id core.TemplateID, provider ModelProvider) (*template.Template, error) {
	variants, ok := ts.templates[id]
	if !ok {
		return nil, fmt.Errorf("no templates found for id '%s'", id)
	}
	if tmpl, ok := variants[provider]; ok {
		return tmpl, nil
	}
	if tmpl, ok := variants[DefaultProvider]; ok {
		return tmpl, nil
	}
	return nil, fmt.Errorf("no template for id '%s' and provider '%s', and no default was available", id, provider)
}

// Render executes the selected template with data.
func (ts *TemplateSet) Render(id core.TemplateID, provider ModelProvider, data any) (string, error) {
	tmpl, err := ts.Get(id, provider)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
