package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/joelkehle/visual-abstract/internal/config"
)

const pdfTimeout = 30 * time.Second

// PDFRenderer prints an HTML document to PDF.
type PDFRenderer interface {
	Render(ctx context.Context, htmlDoc string) ([]byte, error)
}

// Paper is a sheet size in inches.
type Paper struct {
	Width, Height float64
}

var papers = map[string]Paper{
	"a4":     {Width: 8.27, Height: 11.69},
	"letter": {Width: 8.5, Height: 11},
}

// Layout is the printed page of one abstract.
type Layout struct {
	Paper  Paper
	Margin float64
}

// LayoutFor maps render settings to a page layout. Unknown paper sizes fall
// back to A4.
func LayoutFor(cfg config.RenderConfig) Layout {
	p, ok := papers[cfg.PaperSize]
	if !ok {
		p = papers["a4"]
	}
	return Layout{Paper: p, Margin: cfg.MarginInches}
}

func (l Layout) printParams() *cdppage.PrintToPDFParams {
	return cdppage.PrintToPDF().
		WithPrintBackground(true).
		WithPreferCSSPageSize(false).
		WithPaperWidth(l.Paper.Width).
		WithPaperHeight(l.Paper.Height).
		WithMarginTop(l.Margin).
		WithMarginBottom(l.Margin).
		WithMarginLeft(l.Margin).
		WithMarginRight(l.Margin)
}

type ChromiumPDFRenderer struct {
	chromePath string
	layout     Layout
}

// NewChromiumPDFRenderer uses cfg.ChromePath, or the first Chromium found on
// the usual paths when it is empty.
func NewChromiumPDFRenderer(cfg config.RenderConfig) *ChromiumPDFRenderer {
	path := cfg.ChromePath
	if path == "" {
		path = DetectChromePath()
	}
	return &ChromiumPDFRenderer{chromePath: path, layout: LayoutFor(cfg)}
}

func (r *ChromiumPDFRenderer) ChromePath() string { return r.chromePath }

func (r *ChromiumPDFRenderer) Layout() Layout { return r.layout }

func (r *ChromiumPDFRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	return opts
}

// Render loads htmlDoc as a data URL in a fresh headless browser and prints it.
func (r *ChromiumPDFRenderer) Render(ctx context.Context, htmlDoc string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var out []byte
	printPage := chromedp.ActionFunc(func(ctx context.Context) error {
		b, _, err := r.layout.printParams().Do(ctx)
		out = b
		return err
	})
	src := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(src),
		chromedp.WaitVisible(".va", chromedp.ByQuery),
		printPage,
	); err != nil {
		return nil, fmt.Errorf("print abstract: %w", err)
	}
	return out, nil
}

func DetectChromePath() string {
	for _, p := range []string{
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
