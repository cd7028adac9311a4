package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joelkehle/visual-abstract/internal/assistant"
	"github.com/joelkehle/visual-abstract/internal/config"
	"github.com/joelkehle/visual-abstract/internal/pipeline"
	"github.com/joelkehle/visual-abstract/internal/priority"
	"github.com/joelkehle/visual-abstract/internal/render"
	"github.com/joelkehle/visual-abstract/internal/telemetry"
)

func generateCmd(g *globalFlags) *cobra.Command {
	var summaryFile string
	var jsonOut, htmlOut, pdfOut string
	var split priority.Split
	var offline bool

	cmd := &cobra.Command{
		Use:   "generate [pdf]",
		Short: "Generate a visual abstract for one paper",
		Long: "Generate runs the full pipeline for one PDF. With --summary-file the hosted\n" +
			"assistant is skipped and the given summary text is used instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && summaryFile == "" {
				return fmt.Errorf("a pdf path or --summary-file is required")
			}
			if err := split.Validate(); err != nil {
				return err
			}
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			shutdownTracer := telemetry.InitTracer(logger, cfg.Telemetry.ServiceName)
			defer func() { _ = shutdownTracer(context.Background()) }()

			req := pipeline.Request{Priorities: split}
			var p *pipeline.Pipeline
			if summaryFile != "" {
				text, err := os.ReadFile(summaryFile)
				if err != nil {
					return fmt.Errorf("read summary: %w", err)
				}
				req.Summary = string(text)
				completer, err := refiner(cfg, logger, offline)
				if err != nil {
					return err
				}
				p = pipeline.NewPipeline(nil, completer, logger)
			} else {
				doc, err := readDocument(args[0])
				if err != nil {
					return err
				}
				req.Document = doc
				if p, err = buildPipeline(ctx, cfg, logger, offline); err != nil {
					return err
				}
			}

			res, err := p.RunWithProgress(ctx, req, func(stage, message string) {
				logger.WithField("stage", stage).Info(message)
			})
			if err != nil {
				return err
			}
			return writeOutputs(ctx, cmd, res, jsonOut, htmlOut, pdfOut, cfg.Render)
		},
	}
	cmd.Flags().StringVar(&summaryFile, "summary-file", "", "Use this summary text instead of calling the assistant")
	cmd.Flags().StringVar(&jsonOut, "json", "", "Write the full result as JSON to this path")
	cmd.Flags().StringVar(&htmlOut, "html", "", "Write the rendered abstract as HTML to this path")
	cmd.Flags().StringVar(&pdfOut, "pdf", "", "Write the rendered abstract as PDF to this path")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the refine stage and use the local seed abstract")
	addSplitFlags(cmd, &split)
	return cmd
}

func addSplitFlags(cmd *cobra.Command, split *priority.Split) {
	d := priority.Default()
	cmd.Flags().IntVar(&split.Textual, "textual", d.Textual, "Textual priority")
	cmd.Flags().IntVar(&split.Graphical, "graphical", d.Graphical, "Graphical priority")
	cmd.Flags().IntVar(&split.Symbolical, "symbolical", d.Symbolical, "Symbolical priority")
}

func readDocument(path string) (assistant.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return assistant.Document{}, fmt.Errorf("read document: %w", err)
	}
	doc := assistant.Document{
		Name:     filepath.Base(path),
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Data:     data,
	}
	return doc, assistant.ValidateDocument(doc)
}

func writeOutputs(ctx context.Context, cmd *cobra.Command, res pipeline.Result, jsonOut, htmlOut, pdfOut string, renderCfg config.RenderConfig) error {
	if jsonOut == "" && htmlOut == "" && pdfOut == "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Abstract)
	}
	if jsonOut != "" {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonOut, b, 0o644); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	if htmlOut == "" && pdfOut == "" {
		return nil
	}
	page, err := render.HTML(res.Abstract, res.Summary)
	if err != nil {
		return err
	}
	if htmlOut != "" {
		if err := os.WriteFile(htmlOut, []byte(page), 0o644); err != nil {
			return fmt.Errorf("write html: %w", err)
		}
	}
	if pdfOut != "" {
		chromium := render.NewChromiumPDFRenderer(renderCfg)
		if chromium.ChromePath() == "" {
			return fmt.Errorf("chromium not found; set CHROME_PATH")
		}
		pdf, err := chromium.Render(ctx, page)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		if err := os.WriteFile(pdfOut, pdf, 0o644); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
	}
	return nil
}
