package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Namespace addresses one collection.
type Namespace struct {
	Database   string
	Collection string
}

func (n Namespace) String() string {
	return n.Database + "." + n.Collection
}

// Session is a short-lived handle on the destination store. It is opened
// for one endpoint's write and closed right after.
type Session interface {
	BulkWrite(ctx context.Context, ns Namespace, writes []mongo.WriteModel) (*mongo.BulkWriteResult, error)
	Close(ctx context.Context) error
}

// Opener hands out sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// MongoOpener connects a fresh client for every session.
type MongoOpener struct {
	URI          string
	WriteTimeout time.Duration
}

func NewMongoOpener(uri string) *MongoOpener {
	return &MongoOpener{URI: uri, WriteTimeout: 30 * time.Second}
}

func (o *MongoOpener) Open(ctx context.Context) (Session, error) {
	client, err := ConnectMongo(ctx, o.URI)
	if err != nil {
		return nil, err
	}
	return &mongoSession{client: client, writeTimeout: o.WriteTimeout}, nil
}

type mongoSession struct {
	client       *mongo.Client
	writeTimeout time.Duration
}

func (s *mongoSession) BulkWrite(ctx context.Context, ns Namespace, writes []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	coll := s.client.Database(ns.Database).Collection(ns.Collection)
	return coll.BulkWrite(ctx, writes)
}

func (s *mongoSession) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
