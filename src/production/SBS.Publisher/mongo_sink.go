package publisher

import (
	"context"
	"fmt"
	"time"

	config "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Config"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoSink stores each message as a document in one collection
type MongoSink struct {
	client    *mongo.Client
	coll      inserter
	connected bool
}

// NewMongoSink connects and pings the server within the configured timeout
func NewMongoSink(ctx context.Context, cfg *config.MongoConfig, log *logger.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.URI)
	clientOptions.SetServerSelectionTimeout(cfg.ConnectTimeout)
	clientOptions.SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	log.Logger.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("Connected to MongoDB")
	return &MongoSink{
		client:    client,
		coll:      client.Database(cfg.Database).Collection(cfg.Collection),
		connected: true,
	}, nil
}

func (s *MongoSink) Name() string { return config.SinkMongo }

func (s *MongoSink) Publish(ctx context.Context, msg Message) error {
	if !s.connected {
		return ErrNotConnected
	}

	var payload bson.M
	if err := bson.UnmarshalExtJSON(msg.Payload, false, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	doc := bson.M{
		"topic":       msg.Topic,
		"key":         msg.Key,
		"payload":     payload,
		"publishedAt": msg.Time.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert into MongoDB: %w", err)
	}
	return nil
}

func (s *MongoSink) IsConnected() bool {
	return s.connected
}

func (s *MongoSink) Close() error {
	s.connected = false
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
