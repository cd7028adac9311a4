package extract

import (
	"fmt"

	"github.com/joelkehle/visual-abstract/internal/abstract"
)

// Seed builds a visual abstract from extracted data alone.
func Seed(d ProcessedData) abstract.VisualAbstract {
	v := abstract.VisualAbstract{
		Header: abstract.Header{Title: d.Title, StudyType: d.StudyType},
	}
	for i, m := range d.Methods {
		v.Methods = append(v.Methods, abstract.Step{
			Title:       fmt.Sprintf("Step %d", i+1),
			Description: m,
			Icon:        IconFor(m),
		})
	}
	for i, f := range d.Findings {
		v.KeyFindings = append(v.KeyFindings, abstract.Finding{
			Title:       fmt.Sprintf("Finding %d", i+1),
			Description: f,
			Icon:        IconFor(f),
		})
	}
	v.Visualizations = chartsByUnit(d.Metrics)

	switch {
	case len(d.Findings) > 0:
		v.Conclusion.Summary = d.Findings[len(d.Findings)-1]
	default:
		v.Conclusion.Summary = d.Title
	}
	return v
}

func chartsByUnit(metrics []Metric) []abstract.Chart {
	var charts []abstract.Chart
	index := map[string]int{}
	for _, m := range metrics {
		i, ok := index[m.Unit]
		if !ok {
			i = len(charts)
			index[m.Unit] = i
			charts = append(charts, abstract.Chart{
				Type:  abstract.ChartBar,
				Title: fmt.Sprintf("Reported values (%s)", m.Unit),
				Unit:  m.Unit,
			})
		}
		charts[i].Data = append(charts[i].Data, abstract.DataPoint{Label: m.Label, Value: m.Value})
	}
	return charts
}
