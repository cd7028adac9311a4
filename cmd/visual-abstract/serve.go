package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelkehle/visual-abstract/internal/assistant"
	"github.com/joelkehle/visual-abstract/internal/config"
	"github.com/joelkehle/visual-abstract/internal/llm"
	"github.com/joelkehle/visual-abstract/internal/pipeline"
	"github.com/joelkehle/visual-abstract/internal/render"
	"github.com/joelkehle/visual-abstract/internal/telemetry"
	"github.com/joelkehle/visual-abstract/internal/webapp"
)

const (
	shutdownTimeout = 15 * time.Second
	pruneInterval   = 5 * time.Minute
)

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload page and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracer := telemetry.InitTracer(logger, cfg.Telemetry.ServiceName)
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.WithError(err).Warn("tracer shutdown")
				}
			}()

			p, err := buildPipeline(ctx, cfg, logger, offline)
			if err != nil {
				return err
			}

			var pdf render.PDFRenderer
			if chromium := render.NewChromiumPDFRenderer(cfg.Render); chromium.ChromePath() != "" {
				pdf = chromium
			} else {
				logger.Warn("chromium not found, pdf downloads disabled")
			}

			srv := webapp.NewServer(ctx, p, webapp.NewJobStore(), webapp.Options{
				MaxUploadBytes: cfg.Server.MaxUploadBytes(),
				JobTimeout:     cfg.Server.JobTimeout,
				RatePerMinute:  cfg.Server.RatePerMinute,
				RateBurst:      cfg.Server.RateBurst,
				Logger:         logger,
				PDFRenderer:    pdf,
			})
			go srv.Prune(ctx, cfg.Server.JobTTL, pruneInterval)

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"addr":       cfg.Server.Addr,
					"assistant":  cfg.Assistant.Model,
					"completion": cfg.Completion.Provider + "/" + cfg.Completion.Model,
					"offline":    offline,
				}).Info("visual-abstract listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("http shutdown")
			}
			srv.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the refine stage and serve the local seed abstract")
	return cmd
}

// buildPipeline wires the hosted assistant and, unless offline, the refine
// completer.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *logrus.Logger, offline bool) (*pipeline.Pipeline, error) {
	backend, err := assistant.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.Assistant.Model)
	if err != nil {
		return nil, err
	}
	runner := assistant.NewRunner(backend, cfg.Assistant.PollInterval, cfg.Assistant.Timeout, logger)
	completer, err := refiner(cfg, logger, offline)
	if err != nil {
		return nil, err
	}
	return pipeline.NewPipeline(runner, completer, logger), nil
}

func refiner(cfg *config.Config, logger *logrus.Logger, offline bool) (llm.Completer, error) {
	if offline {
		return nil, nil
	}
	c, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}
	if r, ok := c.(*llm.Retrying); ok {
		r.OnRetry(func(err error, next time.Duration) {
			logger.WithError(err).WithField("retry_in", next).Warn("completion retry")
		})
	}
	return c, nil
}
