package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/joelkehle/visual-abstract/internal/abstract"
	"github.com/joelkehle/visual-abstract/internal/config"
)

func sample() abstract.VisualAbstract {
	return abstract.VisualAbstract{
		Header:  abstract.Header{Title: "Drug <X> Trial", StudyType: "RCT"},
		Methods: []abstract.Step{{Title: "Randomization", Description: "120 patients", Icon: "shuffle"}},
		Visualizations: []abstract.Chart{
			{Type: abstract.ChartBar, Title: "Response", Unit: "%", Data: []abstract.DataPoint{{Label: "Drug", Value: 45}, {Label: "Placebo", Value: 22.5}}},
			{Type: abstract.ChartPie, Title: "Share", Data: []abstract.DataPoint{{Label: "A", Value: 60}}},
		},
		KeyFindings: []abstract.Finding{{Title: "Improvement", Description: "45% better", Icon: "trending-up"}},
		Conclusion:  abstract.Conclusion{Summary: "Drug X helps.", Implications: []string{"Larger trials"}},
	}
}

func TestHTMLRendersSections(t *testing.T) {
	out, err := HTML(sample(), "**Results**: better.\n\n<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Drug &lt;X&gt; Trial",
		`data-icon="shuffle"`,
		"width:100.0%",
		"width:50.0%",
		"<td>60</td>",
		"<li>Larger trials</li>",
		"<strong>Results</strong>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Fatal("raw html in summary must not be rendered")
	}
}

func TestHTMLOmitsEmptySections(t *testing.T) {
	out, err := HTML(abstract.VisualAbstract{Header: abstract.Header{Title: "T"}, Conclusion: abstract.Conclusion{Summary: "S"}}, "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, absent := range []string{"<h2>Methods</h2>", "<h2>Data</h2>", "<h2>Key findings</h2>", "Paper summary"} {
		if strings.Contains(out, absent) {
			t.Fatalf("did not expect %q in output", absent)
		}
	}
}

func TestBarWidth(t *testing.T) {
	if barWidth(5, 0) != "0" || barWidth(-1, 10) != "0" {
		t.Fatal("non-positive inputs should give zero width")
	}
	if got := barWidth(1, 3); got != "33.3" {
		t.Fatalf("barWidth(1,3) = %q", got)
	}
	if formatValue(12.50) != "12.5" {
		t.Fatalf("unexpected formatValue %q", formatValue(12.5))
	}
}

func TestChromiumPDFRenderer(t *testing.T) {
	r := NewChromiumPDFRenderer(config.Default().Render)
	if r.ChromePath() == "" {
		t.Skip("chromium not installed")
	}
	doc, err := HTML(sample(), "")
	if err != nil {
		t.Fatalf("render html: %v", err)
	}
	pdf, err := r.Render(context.Background(), doc)
	if err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("output is not a pdf")
	}
}

func TestLayoutFor(t *testing.T) {
	l := LayoutFor(config.RenderConfig{PaperSize: "letter", MarginInches: 0.75})
	if l.Paper.Width != 8.5 || l.Paper.Height != 11 || l.Margin != 0.75 {
		t.Fatalf("unexpected letter layout %+v", l)
	}
	if got := LayoutFor(config.RenderConfig{PaperSize: "a3"}); got.Paper != papers["a4"] {
		t.Fatalf("unknown size should fall back to a4, got %+v", got.Paper)
	}

	p := LayoutFor(config.Default().Render).printParams()
	if p.PaperWidth != 8.27 || p.PaperHeight != 11.69 || p.MarginLeft != 0.4 || !p.PrintBackground {
		t.Fatalf("unexpected print params %+v", p)
	}
}

func TestChromiumRendererUsesConfiguredLayout(t *testing.T) {
	r := NewChromiumPDFRenderer(config.RenderConfig{ChromePath: "/opt/chrome", PaperSize: "letter", MarginInches: 1})
	if r.ChromePath() != "/opt/chrome" {
		t.Fatalf("explicit chrome path not kept: %q", r.ChromePath())
	}
	if r.Layout().Paper != papers["letter"] || r.Layout().Margin != 1 {
		t.Fatalf("unexpected layout %+v", r.Layout())
	}
}
