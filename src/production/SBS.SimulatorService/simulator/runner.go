package simulator

import (
	"context"
	"fmt"
	"time"

	generator "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Generator"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
	sbsmodels "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Models"
)

// ReadingSource produces the next band and reading
type ReadingSource interface {
	Next() (generator.Band, sbsmodels.Reading)
}

// ReadingPublisher delivers a reading and reports run metrics
type ReadingPublisher interface {
	Publish(ctx context.Context, topic string, reading sbsmodels.Reading) bool
	LogMetrics()
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Runner drives the generate, publish, sleep loop
type Runner struct {
	source      ReadingSource
	publisher   ReadingPublisher
	interval    time.Duration
	maxMessages int
	sleep       SleepFunc
	logger      *logger.Logger
}

// Options configures a Runner. A nil Sleep uses a timer.
type Options struct {
	Interval    time.Duration
	MaxMessages int // 0 runs until ctx is cancelled
	Sleep       SleepFunc
	Logger      *logger.Logger
}

func New(source ReadingSource, publisher ReadingPublisher, opts Options) *Runner {
	r := &Runner{
		source:      source,
		publisher:   publisher,
		interval:    opts.Interval,
		maxMessages: opts.MaxMessages,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
	if r.sleep == nil {
		r.sleep = Sleep
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

// Run loops until ctx is cancelled or MaxMessages ticks have run. Final metrics
// are logged exactly once on the way out.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected error: %v", p)
			r.logger.ErrorWithError(err, "Unexpected error in generator loop")
		}
		r.publisher.LogMetrics()
	}()

	for ticks := 0; r.maxMessages == 0 || ticks < r.maxMessages; ticks++ {
		if ctx.Err() != nil {
			r.logger.Info("Stopping data generation")
			return nil
		}

		band, reading := r.source.Next()
		r.publisher.Publish(ctx, band.Topic, reading)

		if r.maxMessages > 0 && ticks+1 == r.maxMessages {
			break
		}
		if err := r.sleep(ctx, r.interval); err != nil {
			r.logger.Info("Stopping data generation")
			return nil
		}
	}

	r.logger.Logger.Info().Int("messages", r.maxMessages).Msg("Message count reached, stopping data generation")
	return nil
}

// Sleep waits for d using a timer, returning ctx.Err() if ctx ends first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
