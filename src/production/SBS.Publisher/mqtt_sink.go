package publisher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Config"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
)

// MQTTSink publishes to the cloud MQTT broker over a single long-lived client
type MQTTSink struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// NewMQTTSink connects to the broker. A failed connect is returned as an error
// and is not retried.
func NewMQTTSink(cfg *config.Config, log *logger.Logger) (*MQTTSink, error) {
	brokerURL := cfg.GetMQTTBrokerURL()
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(cfg.MQTT.ClientID).
		SetKeepAlive(cfg.MQTT.KeepAlive).
		SetConnectTimeout(cfg.MQTT.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true)

	if cfg.MQTT.BrokerUser != "" {
		opts.SetUsername(cfg.MQTT.BrokerUser)
		opts.SetPassword(cfg.MQTT.BrokerPass)
	}

	if cfg.MQTT.UseTLS || cfg.MQTT.BrokerHost == "" {
		tlsCfg, err := tlsConfig(cfg.MQTT.CACertPath, cfg.MQTT.CertPath, cfg.MQTT.KeyPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Logger.Error().Err(err).Str("broker", brokerURL).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.MQTT.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s timed out after %s", brokerURL, cfg.MQTT.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", brokerURL, err)
	}

	log.Logger.Info().Str("broker", brokerURL).Str("client_id", cfg.MQTT.ClientID).Msg("Connected to MQTT broker")
	return newMQTTSink(client, byte(cfg.MQTT.QoS), cfg.MQTT.ConnectTimeout), nil
}

func newMQTTSink(client mqtt.Client, qos byte, timeout time.Duration) *MQTTSink {
	return &MQTTSink{client: client, qos: qos, timeout: timeout}
}

func (s *MQTTSink) Name() string { return config.SinkMQTT }

func (s *MQTTSink) Publish(ctx context.Context, msg Message) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := s.client.Publish(msg.Topic, s.qos, false, msg.Payload)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("publish to %s timed out after %s", msg.Topic, s.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MQTTSink) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

func (s *MQTTSink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}

func tlsConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile != "" {
		ca, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		cp := x509.NewCertPool()
		if !cp.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("bad CA file %s", caFile)
		}
		cfg.RootCAs = cp
	}
	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
