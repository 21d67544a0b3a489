package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	container "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Container"
	generator "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Generator"
	metrics "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Metrics"
	publisher "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Publisher"
	"gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.SimulatorService/health"
	"gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.SimulatorService/simulator"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize dependency injection container
	ctr, err := container.NewSimulatorContainer(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		return 2
	}
	defer ctr.Shutdown(context.Background())

	cfg := ctr.GetConfig()
	logger := ctr.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := cfg.Generator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen, err := generator.New(generator.Options{
		Devices: cfg.Generator.Devices,
		Rand:    rand.New(rand.NewSource(seed)),
	})
	if err != nil {
		logger.ErrorWithError(err, "Failed to create generator")
		return 1
	}

	sink, err := ctr.BuildSink(ctx)
	if err != nil {
		logger.ErrorWithError(err, "Failed to initialize live sink connection. Exiting.")
		return 1
	}

	pub := publisher.New(publisher.Options{
		Sink:       sink,
		Counter:    metrics.NewCounter(time.Now),
		Collectors: ctr.GetCollectors(),
		Logger:     logger.WithComponent("publisher"),
		SessionID:  gen.SessionID(),
	})

	if cfg.Health.Port != "" {
		srv := health.NewServer(&cfg.Health, health.NewController(pub, ctr.GetCollectors(), gen.SessionID()), logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.ErrorWithError(err, "Health server shutdown failed")
			}
		}()
	}

	logger.Logger.Info().
		Str("mode", cfg.Mode()).
		Str("region", cfg.Generator.Region).
		Float64("interval_seconds", cfg.Generator.Interval.Seconds()).
		Str("log_file", cfg.Logging.File).
		Str("sink", cfg.Generator.Sink).
		Str("session_id", gen.SessionID()).
		Int64("seed", seed).
		Msg("Starting IoT data generator")

	runner := simulator.New(gen, pub, simulator.Options{
		Interval:    cfg.Generator.Interval,
		MaxMessages: cfg.Generator.Count,
		Logger:      logger.WithSession(gen.SessionID()),
	})
	if err := runner.Run(ctx); err != nil {
		return 1
	}
	return 0
}
