package services

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/templates.yaml
var defaultTemplateCatalog []byte

type templateCatalogFile struct {
	Templates []domain.WorkflowTemplate `yaml:"templates"`
}

// LoadTemplateCatalog reads the built-in templates from path, or the embedded catalog when path is empty.
func LoadTemplateCatalog(path string) ([]domain.WorkflowTemplate, error) {
	data := defaultTemplateCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template catalog %s: %w", path, err)
		}
		data = b
	}
	return ParseTemplateCatalog(data)
}

// ParseTemplateCatalog decodes and validates a YAML template catalog.
func ParseTemplateCatalog(data []byte) ([]domain.WorkflowTemplate, error) {
	var file templateCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Templates))
	out := make([]domain.WorkflowTemplate, 0, len(file.Templates))
	for _, tpl := range file.Templates {
		if tpl.ID == "" || tpl.Name == "" {
			return nil, fmt.Errorf("%w: template catalog entries need an id and a name", apperrors.ErrValidation)
		}
		if seen[tpl.ID] {
			return nil, fmt.Errorf("%w: duplicate template id %q", apperrors.ErrValidation, tpl.ID)
		}
		seen[tpl.ID] = true

		plan, err := domain.NormalizePlan(tpl.Plan)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", tpl.ID, err)
		}
		tpl.Plan = plan
		tpl.BuiltIn = true
		out = append(out, tpl)
	}
	return out, nil
}
