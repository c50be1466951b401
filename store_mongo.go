package ws2mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a DocumentStore writing to a single collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// ConnectMongo opens the client described by cfg and probes it with a ping. Any failure
// is fatal: an unsupported mechanism returns ErrUnsupportedAuthMechanism, everything
// else is reported as ErrStoreUnreachable.
func ConnectMongo(ctx context.Context, logger logger, cfg StoreConfig) (*MongoStore, error) {
	logger = logger.WithField("type", "mongo_store")

	clientOpts, err := mongoClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnreachable, err.Error())
	}

	probeDB := cfg.ResolvedAuthSource()
	if clientOpts.Auth != nil && clientOpts.Auth.AuthSource == externalAuthSource {
		probeDB = DefaultAuthSource
	}

	if err := ping(ctx, client.Database(probeDB)); err != nil {
		logger.Errorf("mongodb probe failed: %s", err)
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(ErrStoreUnreachable, err.Error())
	}

	logger.Infof("Successfully connected to MongoDB, writing to %s.%s", cfg.Database, cfg.Collection)

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func mongoClientOptions(cfg StoreConfig) (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)

	cred, err := ResolveCredential(cfg)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		clientOpts.SetAuth(cred.ClientCredential())
	}

	return clientOpts, nil
}

// Insert writes doc to the collection, letting the server assign the _id.
func (s *MongoStore) Insert(ctx context.Context, doc bson.D) error {
	_, err := s.collection.InsertOne(ctx, doc)
	return err
}

// Disconnect closes the client.
func (s *MongoStore) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func ping(ctx context.Context, db *mongo.Database) error {
	var reply bson.M
	if err := db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&reply); err != nil {
		return err
	}
	return checkPingReply(reply)
}

// checkPingReply accepts only {ok: 1}, whatever numeric type the server used.
func checkPingReply(reply bson.M) error {
	var ok float64
	switch v := reply["ok"].(type) {
	case float64:
		ok = v
	case int32:
		ok = float64(v)
	case int64:
		ok = float64(v)
	case nil:
		return errors.New("ping reply carries no 'ok' field")
	default:
		return errors.Errorf("unexpected 'ok' type %T in ping reply", v)
	}

	if ok != 1 {
		return errors.Errorf("unexpected response to ping: %v", reply)
	}
	return nil
}
