package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/mode"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/data"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/events"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

const (
	// Added on top of the mode processor shutdown time.
	shutdownGrace = 3 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"device":  mode.Device,
	"viewer":  mode.Viewer,
	"enroll":  mode.Enroll,
	"forget":  mode.Forget,
	"devices": mode.Devices,
}

// Streaming modes publish events and get the full shutdown wait.
var streamingModes = map[string]bool{
	"device": true,
	"viewer": true,
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  monitor device
  monitor viewer [device] [camera]
  monitor enroll <device> <name> <image.jpg>
  monitor forget <device> <name>
  monitor devices [list | add <name> <address> <port> | default <name> | recordings]

viewer commands, one per line on stdin:
  <camera path> | enroll <name> | forget <name>`)
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			return 1
		}
		if err == nil {
			lgr.Logger.Info("loaded env vars from .env file")
		}
	}

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return 2
	}
	modeType, modeArgs := args[0], args[1:]

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		usage()
		return 2
	}

	settingsFolder := os.Getenv("SETTINGS_FOLDER")
	if settingsFolder == "" {
		settingsFolder = "./settings"
	}
	cfgSvc, err := config.NewFile(filepath.Join(settingsFolder, "config.yaml"))
	if err != nil {
		lgr.Logger.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	dataSvc := data.NewFilesDB(cfgSvc)

	eventsSvc := events.NewNone()
	if streamingModes[modeType] {
		eventsSvc, err = events.New(canxCtx, cfgSvc.GetEventsParameters())
		if err != nil {
			lgr.Logger.Warn(
				"events sink unavailable, events are dropped",
				slog.String("sink", cfgSvc.GetEventsParameters().Sink),
				slog.Any("error", err),
			)
			eventsSvc = events.NewNone()
		}
	}
	defer eventsSvc.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:    cfgSvc,
		DataSvc:   dataSvc,
		EventsSvc: eventsSvc,
	}

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, modeArgs)
	}()

	var modeErr error
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"monitor context cancelled",
			slog.String("mode", modeType),
		)

	case modeErr = <-modeProcResult:
		if modeErr != nil {
			lgr.Logger.Error(
				"mode processor exited",
				slog.String("mode", modeType),
				slog.Any("error", modeErr),
			)
		}
		return exitCode(modeErr)
	}

	if !streamingModes[modeType] {
		return 0
	}

	// Give the mode processor its own shutdown period to drain its streams
	waitOnShutdown := time.Duration(cfgSvc.GetModeMaxShutdownTime())*time.Second + shutdownGrace
	lgr.Logger.Info(
		"monitor is waiting for the mode processor to exit",
		slog.Duration("period", waitOnShutdown),
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"monitor shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)

	case modeErr = <-modeProcResult:
		if modeErr != nil {
			lgr.Logger.Info(
				"mode processor exited",
				slog.Any("error", xerrors.New(modeErr.Error())),
			)
		}
	}
	return exitCode(modeErr)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, mode.ErrUsage):
		usage()
		return 2
	default:
		return 1
	}
}
