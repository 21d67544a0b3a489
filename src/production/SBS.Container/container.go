package container

import (
	"context"
	"fmt"
	"sync"

	config "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Config"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
	metrics "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Metrics"
	publisher "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Publisher"
)

type sinkFactory func(ctx context.Context, cfg *config.Config, log *logger.Logger) (publisher.Sink, error)

var sinkFactories = map[string]sinkFactory{
	config.SinkMQTT: func(_ context.Context, cfg *config.Config, log *logger.Logger) (publisher.Sink, error) {
		return publisher.NewMQTTSink(cfg, log)
	},
	config.SinkKafka: func(ctx context.Context, cfg *config.Config, log *logger.Logger) (publisher.Sink, error) {
		return publisher.NewKafkaSink(ctx, &cfg.Kafka, log)
	},
	config.SinkMongo: func(ctx context.Context, cfg *config.Config, log *logger.Logger) (publisher.Sink, error) {
		return publisher.NewMongoSink(ctx, &cfg.Mongo, log)
	},
}

// SimulatorContainer manages dependencies for the generator service
type SimulatorContainer struct {
	config     *config.Config
	logger     *logger.Logger
	collectors *metrics.Collectors

	mu           sync.Mutex
	cleanupFuncs []func() error
}

// NewSimulatorContainer loads configuration from the environment, applies the
// command line flags and initializes the logger
func NewSimulatorContainer(args []string) (*SimulatorContainer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ApplyFlags(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &SimulatorContainer{
		config:     cfg,
		logger:     logger.NewLogger(&cfg.Logging),
		collectors: metrics.NewCollectors(),
	}, nil
}

// GetConfig returns the configuration
func (c *SimulatorContainer) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *SimulatorContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetCollectors returns the Prometheus collectors
func (c *SimulatorContainer) GetCollectors() *metrics.Collectors {
	return c.collectors
}

// BuildSink connects the configured live sink behind a circuit breaker. It
// returns nil in simulation mode.
func (c *SimulatorContainer) BuildSink(ctx context.Context) (publisher.Sink, error) {
	if !c.config.Generator.Send {
		return nil, nil
	}

	factory, ok := sinkFactories[c.config.Generator.Sink]
	if !ok {
		return nil, fmt.Errorf("unknown sink %q", c.config.Generator.Sink)
	}
	sink, err := factory(ctx, c.config, c.logger.WithComponent(c.config.Generator.Sink))
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s sink: %w", c.config.Generator.Sink, err)
	}

	breaker := publisher.NewCircuitBreaker(
		c.config.Breaker.MaxFailures,
		c.config.Breaker.ResetTimeout,
		func(s publisher.CircuitBreakerState) {
			c.collectors.BreakerState.Set(float64(s))
			c.logger.Logger.Warn().Str("state", s.String()).Str("sink", sink.Name()).Msg("Circuit breaker state changed")
		},
	)
	guarded := publisher.NewBreakerSink(sink, breaker)
	c.AddCleanupFunc(guarded.Close)
	return guarded, nil
}

// AddCleanupFunc adds a cleanup function
func (c *SimulatorContainer) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs cleanup functions in reverse order, then closes the log file
func (c *SimulatorContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down generator container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Generator container shutdown complete")
	return c.logger.Close()
}
