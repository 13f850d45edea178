// Package db implements the metadata store, backed by MongoDB. The
// collections are wrapped in a MetadataStore that owns the
// transactional-session primitive and the unique-slug insert, instead
// of leaving transaction boundaries to whichever caller happens to
// touch Mongo.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect applies the URI, pings within a bounded context, and fails
// fast on error.
func Connect(uri string, log *logrus.Entry) (*mongo.Client, error) {
	clientOpts := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	log.Info("connected to MongoDB")
	return client, nil
}
