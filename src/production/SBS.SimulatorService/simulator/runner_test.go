package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	generator "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Generator"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
	sbsmodels "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Models"
	publisher "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Publisher"
)

type fakeSource struct {
	n       int
	panicAt int
}

func (s *fakeSource) Next() (generator.Band, sbsmodels.Reading) {
	s.n++
	if s.panicAt > 0 && s.n == s.panicAt {
		panic("sensor exploded")
	}
	band := generator.Bands[0]
	return band, sbsmodels.Reading{DeviceParameter: band.Kind, DeviceValue: band.Min}
}

type fakePublisher struct {
	topics  []string
	metrics int
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ sbsmodels.Reading) bool {
	p.topics = append(p.topics, topic)
	return true
}

func (p *fakePublisher) LogMetrics() { p.metrics++ }

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeps := 0
	var intervals []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps++
		intervals = append(intervals, d)
		if sleeps == 5 {
			cancel()
		}
		return ctx.Err()
	}

	pub := &fakePublisher{}
	r := New(&fakeSource{}, pub, Options{Interval: 1500 * time.Millisecond, Sleep: sleep})
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(pub.topics) != 5 {
		t.Errorf("published %d, want 5", len(pub.topics))
	}
	if pub.metrics != 1 {
		t.Errorf("final metrics logged %d times, want 1", pub.metrics)
	}
	for _, d := range intervals {
		if d != 1500*time.Millisecond {
			t.Errorf("slept %v, want 1.5s", d)
		}
	}
	if pub.topics[0] != "/sbs/devicedata/flow" {
		t.Errorf("topic = %q", pub.topics[0])
	}
}

func TestRunMaxMessages(t *testing.T) {
	sleeps := 0
	sleep := func(context.Context, time.Duration) error { sleeps++; return nil }

	pub := &fakePublisher{}
	r := New(&fakeSource{}, pub, Options{MaxMessages: 3, Sleep: sleep})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.topics) != 3 || sleeps != 2 || pub.metrics != 1 {
		t.Errorf("published=%d sleeps=%d metrics=%d", len(pub.topics), sleeps, pub.metrics)
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &fakePublisher{}
	if err := New(&fakeSource{}, pub, Options{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.topics) != 0 || pub.metrics != 1 {
		t.Errorf("published=%d metrics=%d", len(pub.topics), pub.metrics)
	}
}

func TestRunRecoversUnexpectedError(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{}
	sleep := func(context.Context, time.Duration) error { return nil }
	r := New(&fakeSource{panicAt: 3}, pub, Options{Sleep: sleep, Logger: logger.NewWithWriter(&buf, zerolog.InfoLevel)})

	err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sensor exploded") {
		t.Fatalf("err = %v", err)
	}
	if len(pub.topics) != 2 || pub.metrics != 1 {
		t.Errorf("published=%d metrics=%d", len(pub.topics), pub.metrics)
	}
	if !strings.Contains(buf.String(), "Unexpected error in generator loop") {
		t.Errorf("missing error log: %s", buf.String())
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep(1ms) = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep on cancelled ctx = %v", err)
	}
}

func TestSimulationRunEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, zerolog.InfoLevel)

	gen, err := generator.New(generator.Options{
		Devices: []string{"SBS01", "SBS02", "SBS03", "SBS04", "SBS05"},
		Rand:    rand.New(rand.NewSource(99)),
	})
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	pub := publisher.New(publisher.Options{Logger: log, SessionID: gen.SessionID()})
	noSleep := func(context.Context, time.Duration) error { return nil }

	r := New(gen, pub, Options{MaxMessages: 250, Sleep: noSleep, Logger: log})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	simulated, reports := 0, 0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]interface{}
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		switch e["message"] {
		case "Simulation mode - would publish":
			simulated++
			kind := sbsmodels.ParameterKind(e["parameter"].(string))
			band, ok := generator.BandForKind(kind)
			if !ok {
				t.Fatalf("unknown parameter %v", e["parameter"])
			}
			if e["topic"] != band.Topic {
				t.Errorf("%s published to %v", kind, e["topic"])
			}
			value := int(e["value"].(float64))
			if value < band.Min || value > band.Max {
				t.Errorf("%s value %d out of range", kind, value)
			}
		case "Message metrics":
			reports++
		}
	}
	if simulated != 250 {
		t.Errorf("simulated = %d, want 250", simulated)
	}
	// at 100 and 200, then once at shutdown
	if reports != 3 {
		t.Errorf("metrics reports = %d, want 3", reports)
	}
}
