// Package mongo implements the audit repositories on MongoDB for deployments
// whose clinical data already lives there.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gosuda/clinaudit/internal/domain"
)

const (
	eventsCollection   = "audit_events"
	outboxCollection   = "audit_outbox"
	countersCollection = "audit_counters"
	usersCollection    = "users"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	events *EventRepo
	outbox *OutboxRepo
	users  *UserRepo
}

func New(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.New: connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo.New: ping: %w", err)
	}

	db := client.Database(database)

	return &Store{
		client: client,
		db:     db,
		events: NewEventRepo(db.Collection(eventsCollection), db.Collection(countersCollection)),
		outbox: NewOutboxRepo(db.Collection(outboxCollection)),
		users:  NewUserRepo(db.Collection(usersCollection)),
	}, nil
}

// EnsureIndexes creates the indexes the query paths rely on. It is
// idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(eventsCollection).Indexes().CreateMany(ctx, eventIndexes())
	if err != nil {
		return fmt.Errorf("mongo.Store.EnsureIndexes: events: %w", err)
	}

	_, err = s.db.Collection(outboxCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "processedAt", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo.Store.EnsureIndexes: outbox: %w", err)
	}

	return nil
}

// eventIndexes serve the tenant-scoped filters. Every filtered index ends in
// the (timestamp, seq) sort used by Find and LatestHash.
func eventIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "actorId", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{
			{Key: "tenantId", Value: 1}, {Key: "resourceType", Value: 1}, {Key: "resourceId", Value: 1},
			{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1},
		}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "actionType", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Events() domain.AuditEventRepository  { return s.events }
func (s *Store) Outbox() domain.AuditOutboxRepository { return s.outbox }
func (s *Store) Users() domain.UserRepository         { return s.users }
