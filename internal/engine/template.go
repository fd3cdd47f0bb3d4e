package engine

import (
	"context"
	"strings"
	"text/template"

	"github.com/loomwork/loom/pkg/api"
)

// renderTemplateStep is the default executor for template-configured nodes:
// it renders the node's text/template against the resolved inputs and
// returns the rendered string.
func renderTemplateStep(cfg api.TemplateConfig) api.StepFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		tmpl, err := template.New("node").Option("missingkey=zero").Parse(cfg.Template)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		if err := tmpl.Execute(&sb, inputs); err != nil {
			return nil, err
		}
		return sb.String(), nil
	}
}
