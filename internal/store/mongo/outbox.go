package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gosuda/clinaudit/internal/domain"
)

type outboxDoc struct {
	ID            string                `bson:"_id"`
	TenantID      *string               `bson:"tenantId"`
	ActorID       *string               `bson:"actorId"`
	ActorSnapshot *domain.ActorSnapshot `bson:"actorSnapshot"`
	Timestamp     time.Time             `bson:"timestamp"`
	ActionType    string                `bson:"actionType"`
	ResourceType  *string               `bson:"resourceType"`
	ResourceID    *string               `bson:"resourceId"`
	Payload       *string               `bson:"payload"`
	EventClass    string                `bson:"eventClass"`
	ErrorMessage  string                `bson:"errorMessage"`
	CreatedAt     time.Time             `bson:"createdAt"`
	ProcessedAt   *time.Time            `bson:"processedAt"`
}

type OutboxRepo struct {
	coll *mongo.Collection
}

func NewOutboxRepo(coll *mongo.Collection) *OutboxRepo {
	return &OutboxRepo{coll: coll}
}

func (r *OutboxRepo) Create(ctx context.Context, entry *domain.AuditOutboxEntry) error {
	payload, err := encodePayload(entry.Payload)
	if err != nil {
		return fmt.Errorf("outboxRepo.Create: %w", err)
	}

	_, err = r.coll.InsertOne(ctx, &outboxDoc{
		ID:            entry.ID.String(),
		TenantID:      uuidString(entry.TenantID),
		ActorID:       entry.ActorID,
		ActorSnapshot: entry.ActorSnapshot,
		Timestamp:     entry.Timestamp,
		ActionType:    string(entry.ActionType),
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Payload:       payload,
		EventClass:    string(entry.EventClass),
		ErrorMessage:  entry.ErrorMessage,
		CreatedAt:     entry.CreatedAt,
		ProcessedAt:   entry.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("outboxRepo.Create: %w", err)
	}

	return nil
}

// ListPending returns unprocessed entries, oldest first. A null filter value
// matches both explicit nulls and missing fields.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]*domain.AuditOutboxEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{"processedAt": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("outboxRepo.ListPending: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]*domain.AuditOutboxEntry, 0)
	for cur.Next(ctx) {
		var doc outboxDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("outboxRepo.ListPending: decode: %w", err)
		}
		entry, err := fromOutboxDoc(&doc)
		if err != nil {
			return nil, fmt.Errorf("outboxRepo.ListPending: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("outboxRepo.ListPending: cursor: %w", err)
	}

	return entries, nil
}

func fromOutboxDoc(doc *outboxDoc) (*domain.AuditOutboxEntry, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", doc.ID, err)
	}
	tenantID, err := parseUUIDPtr(doc.TenantID)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(doc.Payload)
	if err != nil {
		return nil, err
	}

	return &domain.AuditOutboxEntry{
		ID:            id,
		TenantID:      tenantID,
		ActorID:       doc.ActorID,
		ActorSnapshot: doc.ActorSnapshot,
		Timestamp:     doc.Timestamp.UTC(),
		ActionType:    domain.ActionType(doc.ActionType),
		ResourceType:  doc.ResourceType,
		ResourceID:    doc.ResourceID,
		Payload:       payload,
		EventClass:    domain.EventClass(doc.EventClass),
		ErrorMessage:  doc.ErrorMessage,
		CreatedAt:     doc.CreatedAt.UTC(),
		ProcessedAt:   doc.ProcessedAt,
	}, nil
}
