package publisher

import (
	"context"
	"fmt"
	"time"

	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
	metrics "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Metrics"
	sbsmodels "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Models"
)

// Options configures a Publisher. A nil Sink selects simulation mode.
type Options struct {
	Sink       Sink
	Counter    *metrics.Counter
	Collectors *metrics.Collectors
	Logger     *logger.Logger
	SessionID  string
	Now        func() time.Time
}

// Publisher delivers readings to a sink, or only logs them in simulation mode
type Publisher struct {
	sink       Sink
	counter    *metrics.Counter
	collectors *metrics.Collectors
	logger     *logger.Logger
	sessionID  string
	now        func() time.Time
}

func New(opts Options) *Publisher {
	p := &Publisher{
		sink:       opts.Sink,
		counter:    opts.Counter,
		collectors: opts.Collectors,
		logger:     opts.Logger,
		sessionID:  opts.SessionID,
		now:        opts.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.counter == nil {
		p.counter = metrics.NewCounter(p.now)
	}
	if p.collectors == nil {
		p.collectors = metrics.NewCollectors()
	}
	if p.logger == nil {
		p.logger = logger.Nop()
	}
	return p
}

// Simulation reports whether readings are only logged
func (p *Publisher) Simulation() bool {
	return p.sink == nil
}

// Sink returns the live sink, nil in simulation mode
func (p *Publisher) Sink() Sink {
	return p.sink
}

// Count returns the number of successfully published messages
func (p *Publisher) Count() int {
	return p.counter.Count()
}

// Publish sends one reading to topic. Failures are logged and reported as false.
func (p *Publisher) Publish(ctx context.Context, topic string, reading sbsmodels.Reading) bool {
	parameter := reading.DeviceParameter.String()

	if p.Simulation() {
		p.logger.Logger.Info().
			Str("topic", topic).
			Str("message_id", reading.MessageID).
			Str("device_id", reading.DeviceID).
			Str("parameter", parameter).
			Int("value", reading.DeviceValue).
			Str("date_time", reading.DateTime).
			Msg("Simulation mode - would publish")
		p.delivered(parameter)
		return true
	}

	payload, err := reading.Payload()
	if err != nil {
		p.publishError(topic, reading, err)
		return false
	}

	start := p.now()
	err = p.sink.Publish(ctx, Message{
		Topic:   topic,
		Key:     reading.DeviceID,
		Payload: payload,
		Time:    start,
	})
	latency := p.now().Sub(start)
	if latency < 0 {
		latency = 0
	}
	if err != nil {
		p.publishError(topic, reading, err)
		return false
	}

	p.collectors.Latency.Observe(latency.Seconds())
	p.logger.Logger.Info().
		Str("sink", p.sink.Name()).
		Str("topic", topic).
		Str("message_id", reading.MessageID).
		Str("device_id", reading.DeviceID).
		Str("parameter", parameter).
		Int("value", reading.DeviceValue).
		Float64("latency_ms", float64(latency)/float64(time.Millisecond)).
		Msg("Message sent")
	p.delivered(parameter)
	return true
}

func (p *Publisher) delivered(parameter string) {
	p.collectors.Published.WithLabelValues(parameter).Inc()
	if count := p.counter.Inc(); metrics.ShouldReport(count, metrics.ReportEvery) {
		p.LogMetrics()
	}
}

func (p *Publisher) publishError(topic string, reading sbsmodels.Reading, err error) {
	p.collectors.Failures.WithLabelValues(reading.DeviceParameter.String()).Inc()
	p.logger.Logger.Error().
		Err(err).
		Str("topic", topic).
		Str("message_id", reading.MessageID).
		Msg("Publishing error")
}

// LogMetrics reports message totals, running time and throughput
func (p *Publisher) LogMetrics() {
	s := p.counter.Snapshot()
	p.logger.Logger.Info().
		Int("total_messages", s.Total).
		Str("running_time", fmt.Sprintf("%.2f seconds", s.Elapsed.Seconds())).
		Str("messages_per_second", fmt.Sprintf("%.2f", s.Throughput)).
		Str("session_id", p.sessionID).
		Msg("Message metrics")
}

// Close closes the live sink
func (p *Publisher) Close() error {
	if p.sink == nil {
		return nil
	}
	return p.sink.Close()
}
