package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	config "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Config"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each message to the Kafka topic derived from its MQTT-style topic
type KafkaSink struct {
	writer    messageWriter
	connected bool
}

// NewKafkaSink checks that a broker is reachable before building the writer,
// since kafka.Writer only connects on first write.
func NewKafkaSink(ctx context.Context, cfg *config.KafkaConfig, log *logger.Logger) (*KafkaSink, error) {
	var lastErr error
	reachable := ""
	for _, b := range cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			log.Logger.Warn().Err(err).Str("broker", b).Msg("Kafka broker dial failed")
			lastErr = err
			continue
		}
		_ = conn.Close()
		reachable = b
		break
	}
	if reachable == "" {
		return nil, fmt.Errorf("no kafka broker reachable: %w", lastErr)
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	log.Logger.Info().Str("broker", reachable).Strs("brokers", cfg.Brokers).Msg("Connected to Kafka")
	return &KafkaSink{writer: w, connected: true}, nil
}

// KafkaTopic maps "/sbs/devicedata/flow" to "sbs.devicedata.flow"
func KafkaTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (s *KafkaSink) Name() string { return config.SinkKafka }

func (s *KafkaSink) Publish(ctx context.Context, msg Message) error {
	if !s.connected {
		return ErrNotConnected
	}
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: KafkaTopic(msg.Topic),
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Time:  msg.Time,
	})
	if err != nil {
		return fmt.Errorf("kafka write to %s: %w", KafkaTopic(msg.Topic), err)
	}
	return nil
}

func (s *KafkaSink) IsConnected() bool {
	return s.connected
}

func (s *KafkaSink) Close() error {
	s.connected = false
	return s.writer.Close()
}
