package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gosuda/clinaudit/internal/domain"
)

// eventDoc is the stored shape. The payload is kept as JSON text: BSON would
// turn nested objects into ordered documents and narrow number types, which
// changes the canonical form on read.
type eventDoc struct {
	ID            string                `bson:"_id"`
	Seq           int64                 `bson:"seq"`
	TenantID      *string               `bson:"tenantId"`
	ActorID       *string               `bson:"actorId"`
	ActorSnapshot *domain.ActorSnapshot `bson:"actorSnapshot"`
	Timestamp     time.Time             `bson:"timestamp"`
	ActionType    string                `bson:"actionType"`
	ResourceType  *string               `bson:"resourceType"`
	ResourceID    *string               `bson:"resourceId"`
	Payload       *string               `bson:"payload"`
	HashEvento    string                `bson:"hashEvento"`
	HashAnterior  *string               `bson:"hashEventoAnterior"`
}

type EventRepo struct {
	events   *mongo.Collection
	counters *mongo.Collection
}

func NewEventRepo(events, counters *mongo.Collection) *EventRepo {
	return &EventRepo{events: events, counters: counters}
}

func (r *EventRepo) Create(ctx context.Context, e *domain.AuditEvent) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return fmt.Errorf("eventRepo.Create: %w", err)
	}
	e.Seq = seq

	doc, err := toEventDoc(e)
	if err != nil {
		return fmt.Errorf("eventRepo.Create: %w", err)
	}

	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("eventRepo.Create: %w", err)
	}

	return nil
}

// nextSeq draws the next insertion sequence from the counters collection.
func (r *EventRepo) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": eventsCollection},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return counter.Value, nil
}

func (r *EventRepo) LatestHash(ctx context.Context, tenantID uuid.UUID) (*string, error) {
	var doc eventDoc
	err := r.events.FindOne(ctx,
		bson.M{"tenantId": tenantID.String()},
		options.FindOne().
			SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}).
			SetProjection(bson.M{"hashEvento": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventRepo.LatestHash: %w", err)
	}

	return &doc.HashEvento, nil
}

func (r *EventRepo) Find(ctx context.Context, filter domain.EventFilter, offset, limit int) ([]*domain.AuditEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := r.events.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.Find: %w", err)
	}

	return decodeEvents(ctx, cur, "eventRepo.Find")
}

func (r *EventRepo) Count(ctx context.Context, filter domain.EventFilter) (int64, error) {
	n, err := r.events.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("eventRepo.Count: %w", err)
	}
	return n, nil
}

func (r *EventRepo) ListRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*domain.AuditEvent, error) {
	filter := buildFilter(domain.EventFilter{TenantID: tenantID, From: &from, To: &to})
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})

	cur, err := r.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListRange: %w", err)
	}

	return decodeEvents(ctx, cur, "eventRepo.ListRange")
}

// buildFilter translates the filter into a query document. The tenant
// condition is always present.
func buildFilter(f domain.EventFilter) bson.D {
	filter := bson.D{{Key: "tenantId", Value: f.TenantID.String()}}

	if f.From != nil || f.To != nil {
		ts := bson.D{}
		if f.From != nil {
			ts = append(ts, bson.E{Key: "$gte", Value: *f.From})
		}
		if f.To != nil {
			ts = append(ts, bson.E{Key: "$lte", Value: *f.To})
		}
		filter = append(filter, bson.E{Key: "timestamp", Value: ts})
	}
	if f.ActorID != "" {
		filter = append(filter, bson.E{Key: "actorId", Value: f.ActorID})
	}
	if f.ResourceType != "" {
		filter = append(filter, bson.E{Key: "resourceType", Value: f.ResourceType})
	}
	if f.ResourceID != "" {
		filter = append(filter, bson.E{Key: "resourceId", Value: f.ResourceID})
	}
	if f.ActionType != "" {
		filter = append(filter, bson.E{Key: "actionType", Value: string(f.ActionType)})
	}

	return filter
}

func decodeEvents(ctx context.Context, cur *mongo.Cursor, caller string) ([]*domain.AuditEvent, error) {
	defer cur.Close(ctx)

	events := make([]*domain.AuditEvent, 0)
	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", caller, err)
		}
		e, err := fromEventDoc(&doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", caller, err)
		}
		events = append(events, e)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%s: cursor: %w", caller, err)
	}

	return events, nil
}

func toEventDoc(e *domain.AuditEvent) (*eventDoc, error) {
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return nil, err
	}

	return &eventDoc{
		ID:            e.ID.String(),
		Seq:           e.Seq,
		TenantID:      uuidString(e.TenantID),
		ActorID:       e.ActorID,
		ActorSnapshot: e.ActorSnapshot,
		Timestamp:     e.Timestamp,
		ActionType:    string(e.ActionType),
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Payload:       payload,
		HashEvento:    e.EventHash,
		HashAnterior:  e.PrevEventHash,
	}, nil
}

func fromEventDoc(doc *eventDoc) (*domain.AuditEvent, error) {
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

	return &domain.AuditEvent{
		ID:            id,
		Seq:           doc.Seq,
		TenantID:      tenantID,
		ActorID:       doc.ActorID,
		ActorSnapshot: doc.ActorSnapshot,
		Timestamp:     doc.Timestamp.UTC(),
		ActionType:    domain.ActionType(doc.ActionType),
		ResourceType:  doc.ResourceType,
		ResourceID:    doc.ResourceID,
		Payload:       payload,
		EventHash:     doc.HashEvento,
		PrevEventHash: doc.HashAnterior,
	}, nil
}

// --- Helpers ---

func encodePayload(p map[string]any) (*string, error) {
	data, err := domain.EncodePayload(p)
	if err != nil || data == nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func decodePayload(s *string) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}
	return domain.DecodePayload([]byte(*s))
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseUUIDPtr(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("parse uuid %q: %w", *s, err)
	}
	return &id, nil
}
