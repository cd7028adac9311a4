package abstract

import "strings"

// Sanitize replaces icons outside allowed with defaultIcon, coerces unknown
// chart types to bar and drops charts left without data points.
func Sanitize(v VisualAbstract, allowed []string, defaultIcon string) VisualAbstract {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	icon := func(name string) string {
		name = strings.ToLower(strings.TrimSpace(name))
		if ok[name] {
			return name
		}
		return defaultIcon
	}

	methods := make([]Step, 0, len(v.Methods))
	for _, m := range v.Methods {
		m.Icon = icon(m.Icon)
		methods = append(methods, m)
	}
	v.Methods = methods

	findings := make([]Finding, 0, len(v.KeyFindings))
	for _, f := range v.KeyFindings {
		f.Icon = icon(f.Icon)
		findings = append(findings, f)
	}
	v.KeyFindings = findings

	charts := make([]Chart, 0, len(v.Visualizations))
	for _, c := range v.Visualizations {
		c.Type = ChartType(strings.ToLower(strings.TrimSpace(string(c.Type))))
		if !c.Type.Valid() {
			c.Type = ChartBar
		}
		data := c.Data[:0:0]
		for _, d := range c.Data {
			if strings.TrimSpace(d.Label) == "" {
				continue
			}
			data = append(data, d)
		}
		if len(data) == 0 {
			continue
		}
		c.Data = data
		charts = append(charts, c)
	}
	v.Visualizations = charts
	return v
}
