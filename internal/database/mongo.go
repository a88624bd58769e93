package repository

import (
	"LiveChat/entity"
	"LiveChat/internal/config"
	"LiveChat/internal/lib/sl"
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"log/slog"
	"time"
)

const (
	conversationsCollection = "conversations"
	chatMessagesCollection  = "chat-messages"
	agentsCollection        = "agents"
)

type MongoDB struct {
	ctx      context.Context
	client   *mongo.Client
	database string
	log      *slog.Logger
}

func NewMongoClient(conf *config.Config, logger *slog.Logger) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return newMongo(clientOptions, conf.Mongo.Database, logger)
}

func newMongo(clientOptions *options.ClientOptions, database string, logger *slog.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect error: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping error: %w", err)
	}

	m := &MongoDB{
		ctx:      context.Background(),
		client:   client,
		database: database,
		log:      logger.With(sl.Module("mongodb")),
	}
	if err = m.EnsureIndexes(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func (m *MongoDB) Close() error {
	return m.client.Disconnect(m.ctx)
}

func (m *MongoDB) findError(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, entity.ErrNotFound)
	}
	return fmt.Errorf("mongodb find error: %w", err)
}

// EnsureIndexes creates the indexes the store relies on for correctness:
// one open conversation per party and unique agent usernames.
func (m *MongoDB) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	_, err := m.collection(conversationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{"open_key", 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{"open_key", bson.D{{"$exists", true}}}}),
		},
		{Keys: bson.D{{"status", 1}, {"updated_at", -1}}},
		{Keys: bson.D{{"agent.id", 1}, {"updated_at", -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb create conversation indexes: %w", err)
	}

	_, err = m.collection(chatMessagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{"conversation_id", 1}, {"created_at", 1}, {"_id", 1}},
	})
	if err != nil {
		return fmt.Errorf("mongodb create chat message index: %w", err)
	}

	_, err = m.collection(agentsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{"username", 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongodb create agent index: %w", err)
	}
	return nil
}
