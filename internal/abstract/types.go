// Package abstract defines the visual abstract document and how one is
// recovered from free-form model output.
package abstract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

// ChartTypes lists every chart type a renderer understands.
var ChartTypes = []ChartType{ChartBar, ChartLine, ChartPie}

func (c ChartType) Valid() bool {
	switch c {
	case ChartBar, ChartLine, ChartPie:
		return true
	}
	return false
}

type Header struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle,omitempty"`
	StudyType string `json:"studyType"`
}

type Step struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// UnmarshalJSON accepts numeric strings for value; models produce both.
func (d *DataPoint) UnmarshalJSON(b []byte) error {
	var raw struct {
		Label string          `json:"label"`
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Label = raw.Label
	if d.Label == "" {
		d.Label = raw.Name
	}
	d.Value = 0
	v := strings.TrimSpace(string(raw.Value))
	if v == "" || v == "null" {
		return nil
	}
	if strings.HasPrefix(v, `"`) {
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return err
		}
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("data point %q: value %s is not a number", d.Label, v)
	}
	d.Value = f
	return nil
}

type Chart struct {
	Type  ChartType   `json:"type"`
	Title string      `json:"title"`
	Unit  string      `json:"unit,omitempty"`
	Data  []DataPoint `json:"data"`
}

type Finding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Conclusion struct {
	Summary      string   `json:"summary"`
	Implications []string `json:"implications,omitempty"`
}

// VisualAbstract is the document the front end renders. Whatever the
// refinement model returns is authoritative; locally built values are a seed.
type VisualAbstract struct {
	Header         Header     `json:"header"`
	Methods        []Step     `json:"methods"`
	Visualizations []Chart    `json:"visualizations"`
	KeyFindings    []Finding  `json:"keyFindings"`
	Conclusion     Conclusion `json:"conclusion"`
}
