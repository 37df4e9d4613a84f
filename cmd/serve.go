package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/httpapi"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/library"
	"github.com/MimeLyc/page-narrator/internal/ocr"
	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/service"
	"github.com/MimeLyc/page-narrator/internal/watcher"
	"github.com/MimeLyc/page-narrator/pkg/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type schedulerRunner interface {
	Schedule(ctx context.Context) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpRunner interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue, inbox scanner and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel, true)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	settingsStore, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	baseRecognizer, err := newRecognizer(cfg.OCR, store)
	if err != nil {
		return err
	}
	recognizer := ocr.NewSwappable(baseRecognizer)
	renderers := newRendererFactory(cfg.Render)

	queue := jobs.NewQueue(cfg.Jobs.Workers, store)
	narrator := service.NewNarrator(recognizer, renderers,
		service.WithTimelineStore(store),
		service.WithProgressReporter(queue),
		service.WithPlanningPause(planningPause(cfg.Render)),
		service.WithDefaultRenderOptions(renderOptions(cfg.Render)),
	)
	errHandler := service.NewDefaultErrorHandler()
	queue.Start(func(ctx context.Context, job *jobs.NarrationJob) error {
		err := service.SafeExecute(func() error { return narrator.Execute(ctx, job) })
		if err != nil {
			errHandler.Handle(err)
		}
		return err
	})
	defer queue.Stop()

	scanner := library.NewScanner(cfg.Paths.InboxDir, cfg.Paths.OutputDir)
	cronEngine := cron.New()
	scheduler := service.NewScheduler(cfg, cronEngine, scanner, queue)
	if _, err := cronEngine.AddFunc("@daily", func() {
		if n, err := store.DeleteExpiredOCRCache(ctx, time.Now()); err != nil {
			log.Warn("Failed to purge OCR cache: %v", err)
		} else if n > 0 {
			log.Info("Purged %d expired OCR cache entries", n)
		}
	}); err != nil {
		return err
	}

	sessions := service.NewSessions(ctx, recognizer, renderers, cfg.Paths.OutputDir,
		service.WithSessionPlanningPause(planningPause(cfg.Render)),
	)

	ocrConfig := cfg.OCR
	apply := func(next config.RuntimeSettings) error {
		if next.OCRModel != ocrConfig.Model {
			ocrConfig.Model = next.OCRModel
			rec, err := newRecognizer(ocrConfig, store)
			if err != nil {
				return err
			}
			recognizer.Swap(rec)
			log.Info("OCR model switched to %s", next.OCRModel)
		}
		return scheduler.ApplyRuntimeSettings(next)
	}

	httpSrv := httpapi.NewServer(scanner, queue,
		httpapi.WithSessions(sessions),
		httpapi.WithScheduler(scheduler),
		httpapi.WithTimelines(store),
		httpapi.WithRenderDefaults(renderOptions(cfg.Render)),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(apply),
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
	)

	if cfg.Schedule.WatchInbox {
		w, err := watcher.New(cfg.Paths.InboxDir, func(ctx context.Context) error {
			_, err := scheduler.ScanNow(ctx, jobs.SourceWatch)
			return err
		})
		if err != nil {
			log.Warn("Inbox watcher disabled: %v", err)
		} else {
			defer w.Stop()
			go func() {
				if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Inbox watcher exited: %v", err)
				}
			}()
		}
	}

	go func() {
		if _, err := scheduler.ScanNow(ctx, jobs.SourceCron); err != nil {
			log.Error("Startup inbox scan failed: %v", err)
		}
	}()

	err = runWithComponents(ctx, cfg, scheduler, cronEngine, httpSrv)
	sessions.Wait()
	return err
}

// runWithComponents schedules scans, starts cron and the HTTP server, and
// blocks until ctx is cancelled or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, scheduler schedulerRunner, cronEngine cronRunner, httpSrv httpRunner) error {
	if err := scheduler.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s (ui=%t)", cfg.HTTP.Addr, cfg.HTTP.UIEnabled)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
