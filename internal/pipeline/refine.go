package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joelkehle/visual-abstract/internal/abstract"
	"github.com/joelkehle/visual-abstract/internal/extract"
	"github.com/joelkehle/visual-abstract/internal/llm"
)

const refineSchema = `{
  "header": {"title": string, "subtitle": string, "studyType": string},
  "methods": [{"title": string, "description": string, "icon": string}],
  "visualizations": [{"type": string, "title": string, "unit": string, "data": [{"label": string, "value": number}]}],
  "keyFindings": [{"title": string, "description": string, "icon": string}],
  "conclusion": {"summary": string, "implications": [string]}
}`

// RefineSystemPrompt is the instruction sent with every refine call.
func RefineSystemPrompt(icons []string, charts []abstract.ChartType) string {
	names := make([]string, len(charts))
	for i, c := range charts {
		names[i] = string(c)
	}
	var sb strings.Builder
	sb.WriteString("You design visual abstracts for research papers. ")
	sb.WriteString("You receive a paper summary, a machine-extracted seed abstract and a priority split saying how much of the abstract should be text, charts and icons. ")
	sb.WriteString("Correct and complete the seed using the summary. Do not invent numbers that are not in the summary.\n\n")
	sb.WriteString("Priorities are percentages: textual weights descriptions, graphical weights charts, symbolical weights icons. ")
	sb.WriteString("A high graphical share means more visualizations and shorter text; a high symbolical share means every step and finding needs a fitting icon.\n\n")
	sb.WriteString("Allowed icons: " + strings.Join(icons, ", ") + ".\n")
	sb.WriteString("Allowed chart types: " + strings.Join(names, ", ") + ".\n\n")
	sb.WriteString("Respond with one JSON object only, no prose and no code fences, with this shape:\n")
	sb.WriteString(refineSchema)
	return sb.String()
}

// Refine asks the model for the final abstract and returns it parsed and
// sanitised. The model's answer replaces the seed entirely.
func Refine(ctx context.Context, c llm.Completer, req RefineRequest) (abstract.VisualAbstract, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return abstract.VisualAbstract{}, fmt.Errorf("encode refine request: %w", err)
	}
	icons := extract.AllowedIcons()
	out, err := c.Complete(ctx, RefineSystemPrompt(icons, abstract.ChartTypes), "Create the visual abstract for this paper.\n\n"+string(payload))
	if err != nil {
		return abstract.VisualAbstract{}, fmt.Errorf("refine call: %w", err)
	}
	v, err := abstract.Parse(out)
	if err != nil {
		return abstract.VisualAbstract{}, err
	}
	return abstract.Sanitize(v, icons, extract.DefaultIcon), nil
}
