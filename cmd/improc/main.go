package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"improc/internal/debug/timing"
	"improc/internal/logger"
	"improc/internal/models"
	"improc/internal/pipeline"
	"improc/internal/services"
	"improc/internal/shutdown"
)

const (
	AppName    = "improc"
	AppVersion = "1.0.0"
)

// Application wires the repositories and services behind the commands
type Application struct {
	logger logger.Logger

	imageService      *services.ImageService
	processingService *services.ProcessingService

	imageRepo  *models.ImageRepository
	configRepo *models.ProcessingConfiguration
	stateRepo  *models.ProcessingStateRepository
	tracker    *timing.Tracker
}

type globalOptions struct {
	logLevel string
	workers  int
	serial   bool
	history  int
}

func main() {
	mgr := shutdown.NewManager(nil, shutdown.DefaultTimeout)
	stop := mgr.Listen()

	err := execute(newRootCommand(mgr), mgr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// execute runs root and then the shutdown sequence, whether or not the
// command failed.
func execute(root *cobra.Command, mgr *shutdown.Manager) error {
	defer mgr.Shutdown()
	return root.ExecuteContext(mgr.Context())
}

func newRootCommand(mgr *shutdown.Manager) *cobra.Command {
	opts := &globalOptions{}
	var app *Application

	root := &cobra.Command{
		Use:          AppName,
		Short:        "Spatial filtering, template matching and gray-level remapping for raster images",
		Version:      AppVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			app, err = NewApplication(opts, mgr)
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (default from LOG_LEVEL)")
	flags.IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0), "maximum concurrent workers")
	flags.BoolVar(&opts.serial, "serial", false, "run every kernel on a single goroutine")
	flags.IntVar(&opts.history, "history", 10, "processed results kept in memory")

	appFn := func() *Application { return app }
	root.AddCommand(
		newBlurCommand(appFn),
		newConvolveCommand(appFn),
		newCorrelateCommand(appFn),
		newHistoMatchCommand(appFn),
		newQuantizeCommand(appFn),
		newFiltersCommand(appFn),
	)
	return root
}

func NewApplication(opts *globalOptions, mgr *shutdown.Manager) (*Application, error) {
	level, err := determineLogLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	appLogger := logger.NewConsoleLogger(level)

	configRepo := models.NewProcessingConfiguration()
	if err := configRepo.UpdatePerformanceSettings(models.PerformanceSettings{
		MaxWorkers:            opts.workers,
		EnableParallelization: !opts.serial,
		MaxHistory:            opts.history,
	}); err != nil {
		return nil, err
	}

	imageRepo := models.NewImageRepository(opts.history)
	stateRepo := models.NewProcessingStateRepository()
	tracker := timing.NewTracker(appLogger)
	// Timings only surface in the debug-level metrics log.
	tracker.SetEnabled(level <= zerolog.DebugLevel)

	imageService := services.NewImageService(
		pipeline.NewLoader(appLogger, tracker),
		pipeline.NewSaver(appLogger, tracker),
		imageRepo,
		appLogger,
	)
	processingService := services.NewProcessingService(imageRepo, configRepo, stateRepo, tracker, appLogger)

	appLogger.Debug("app", "application initialized", map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"workers":    opts.workers,
		"serial":     opts.serial,
		"log_level":  level.String(),
	})

	app := &Application{
		logger:            appLogger,
		imageService:      imageService,
		processingService: processingService,
		imageRepo:         imageRepo,
		configRepo:        configRepo,
		stateRepo:         stateRepo,
		tracker:           tracker,
	}

	// Components shut down in reverse order, so the metrics are logged
	// before the services clear the repositories.
	mgr.Register("image service", shutdown.Func(imageService.Cleanup))
	mgr.Register("processing service", processingService)
	mgr.Register("metrics", shutdown.Func(app.logMetrics))

	return app, nil
}

// logMetrics logs the run's processing statistics.
func (app *Application) logMetrics() {
	stats := app.processingService.Stats()
	imageStats := app.imageRepo.GetImageStats()
	state := app.stateRepo.GetState()

	fields := map[string]interface{}{
		"images_processed":    stats.TotalProcessed,
		"failed_runs":         stats.FailedRuns,
		"avg_process_time_ms": stats.AverageTime.Milliseconds(),
		"images_in_memory":    imageStats.ProcessedCount,
		"worker_count":        stats.Workers,
		"last_operation":      state.Operation,
		"last_stage":          state.CurrentStage,
	}
	for op, s := range stats.Timings {
		fields["time_"+op] = s.Total.String()
	}
	app.logger.Debug("app", "performance metrics", fields)
}

// determineLogLevel prefers the flag, then LOG_LEVEL, then DEBUG=1.
func determineLogLevel(flag string) (zerolog.Level, error) {
	if flag != "" {
		return logger.ParseLevel(flag)
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return logger.ParseLevel(env)
	}
	if os.Getenv("DEBUG") == "1" {
		return zerolog.DebugLevel, nil
	}
	return zerolog.InfoLevel, nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
