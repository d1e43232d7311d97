package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/semmidev/dbkeeper/internal/adapter/compressor"
	"github.com/semmidev/dbkeeper/internal/adapter/database"
	"github.com/semmidev/dbkeeper/internal/adapter/registry"
	"github.com/semmidev/dbkeeper/internal/adapter/storage"
	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
	"github.com/semmidev/dbkeeper/internal/infrastructure/guard"
	"github.com/semmidev/dbkeeper/internal/infrastructure/logger"
	"github.com/semmidev/dbkeeper/internal/infrastructure/metrics"
	"github.com/semmidev/dbkeeper/internal/infrastructure/scheduler"
	"github.com/semmidev/dbkeeper/internal/infrastructure/secret"
	"github.com/semmidev/dbkeeper/internal/usecase"
)

type Options struct {
	// Console receives log output; stderr when nil.
	Console io.Writer
	// Replicate connects the configured upload targets. Commands that never
	// produce artifacts leave it off to avoid network calls.
	Replicate bool
}

// App is the wired object graph shared by every command.
type App struct {
	Config       *config.Config
	Logger       *logger.Logger
	Catalog      *registry.Catalog
	Connections  *usecase.Connections
	Orchestrator *usecase.Orchestrator
	Cleanup      *usecase.Cleanup
	Metrics      *metrics.Metrics

	uploadTargets []usecase.UploadTarget
	scheduler     *scheduler.Scheduler
	closeOnce     sync.Once
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log, err := logger.New(logger.Options{
		Level:   cfg.App.LogLevel,
		File:    cfg.App.LogFile,
		Console: opts.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	box, err := secret.LoadOrCreate(cfg.Registry.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential key: %w", err)
	}

	catalog, err := registry.New(cfg.Registry.Path, box)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	root, err := storage.NewLocal(cfg.Backup.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup root: %w", err)
	}

	m := metrics.New()
	comp := compressor.NewGzip()

	adapters := database.NewTable(cfg.Tools, database.Options{
		Timeout:     cfg.Backup.Timeout,
		TestTimeout: cfg.Backup.TestTimeout,
		Logger:      log,
	})

	var (
		uploadTargets []usecase.UploadTarget
		notifiers     []domain.Notifier
		replicator    *usecase.Replicator
	)
	if opts.Replicate {
		uploadTargets, notifiers = initializeUploadTargets(ctx, cfg, log)
		replicator = usecase.NewReplicator(uploadTargets, comp, log, m)
	}

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Registry:   catalog,
		History:    catalog,
		Adapters:   adapters,
		Guard:      guard.New(),
		Compressor: comp,
		BackupRoot: cfg.Backup.Root,
		Replicator: replicator,
		Notifiers:  notifiers,
		Metrics:    m,
		Logger:     log,
	})

	return &App{
		Config:        cfg,
		Logger:        log,
		Catalog:       catalog,
		Connections:   usecase.NewConnections(catalog, log),
		Orchestrator:  orch,
		Cleanup:       usecase.NewCleanup(root, uploadTargets, log, cfg.Backup.RetentionDays, m),
		Metrics:       m,
		uploadTargets: uploadTargets,
		scheduler:     scheduler.New(log),
	}, nil
}

// initializeUploadTargets skips targets that fail to initialize; a broken
// remote must not prevent local backups.
func initializeUploadTargets(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]usecase.UploadTarget, []domain.Notifier) {
	var (
		targets   []usecase.UploadTarget
		notifiers []domain.Notifier
	)

	for _, targetCfg := range cfg.GetEnabledUploadTargets() {
		var stor domain.Storage

		switch targetCfg.Type {
		case "local":
			local, err := storage.NewLocal(targetCfg.Path)
			if err != nil {
				log.Errorf("Failed to initialize local mirror: %v", err)
				continue
			}
			stor = local
			log.Infof("✓ Local mirror enabled (%s)", targetCfg.Path)

		case "gdrive":
			gdrive, err := storage.NewGDrive(ctx, &targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			stor = gdrive
			log.Infof("✓ Google Drive upload enabled")

		case "s3":
			s3, err := storage.NewS3(ctx, &targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			stor = s3
			log.Infof("✓ AWS S3 upload enabled (bucket: %s)", targetCfg.Bucket)

		case "telegram":
			tg, err := storage.NewTelegram(&targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Telegram: %v", err)
				continue
			}
			stor = tg
			notifiers = append(notifiers, tg)
			log.Infof("✓ Telegram upload enabled")

		default:
			log.Warnf("Unknown upload target type: %s", targetCfg.Type)
			continue
		}

		targets = append(targets, usecase.UploadTarget{
			Name:     targetCfg.Type,
			Storage:  stor,
			Compress: targetCfg.Compress,
		})
	}

	return targets, notifiers
}

// Run schedules the configured backups and the retention cleanup, then
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	for _, s := range a.Config.Schedules {
		name := s.Connection
		if _, err := a.Catalog.Lookup(ctx, name); err != nil {
			return fmt.Errorf("schedule for %s: %w", name, err)
		}

		if err := a.scheduler.AddJob("backup "+name, s.Cron, func(ctx context.Context) error {
			_, err := a.Orchestrator.CreateBackup(ctx, usecase.BackupRequest{Connection: name})
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule backup for %s: %w", name, err)
		}
		a.Logger.Infof("✓ Scheduled backup for %s: %s", name, s.Cron)
	}

	if a.Config.CleanupSchedule != "" {
		a.Logger.Infof("Scheduling cleanup: %s", a.Config.CleanupSchedule)
		if err := a.scheduler.AddJob("cleanup", a.Config.CleanupSchedule, a.Cleanup.Execute); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}

	if a.scheduler.Entries() == 0 {
		return fmt.Errorf("nothing to run: no schedules configured")
	}

	var wg sync.WaitGroup
	serveCtx, stopServing := context.WithCancel(ctx)
	defer func() {
		stopServing()
		wg.Wait()
	}()

	if addr := a.Config.Metrics.Listen; addr != "" {
		srv, err := a.Metrics.Listen(addr)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(serveCtx); err != nil {
				a.Logger.Errorf("Metrics server error: %v", err)
			}
		}()
		a.Logger.Infof("Metrics available at http://%s/metrics", srv.Addr())
	}

	a.scheduler.Start()
	a.Logger.Infof("Scheduler started with %d job(s)", a.scheduler.Entries())
	a.Logger.Infof("Backup destinations: %s + %d remote target(s)", a.Config.Backup.Root, len(a.uploadTargets))

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.closeOnce.Do(func() {
		a.Logger.Infof("Shutting down...")
		a.scheduler.Stop()
		a.Logger.Close()
	})
}
