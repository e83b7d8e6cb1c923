// en internal/shared/infra/platform/db/mongodb/outbox_repo.go
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
)

const OutboxCollection = "outbox"

// OutboxRepoMongoDB implementa sharedDomain.OutboxRepository y sharedDomain.OutboxReader.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{outboxColl: client.Database(dbName).Collection(OutboxCollection)}
}

// mongoOutboxEntry mapea el documento. El payload se guarda como texto JSON
// para que cada topic conserve su forma exacta.
type mongoOutboxEntry struct {
	ID            string     `bson:"_id"`
	AggregateType string     `bson:"aggregateType"`
	AggregateID   string     `bson:"aggregateId"`
	Topic         string     `bson:"topic"`
	Payload       string     `bson:"payload"`
	Status        string     `bson:"status"`
	Retries       int        `bson:"retries"`
	CreatedAt     time.Time  `bson:"createdAt"`
	ProcessedAt   *time.Time `bson:"processedAt,omitempty"`
}

// EnsureIndexes crea el índice que usa FetchPending.
func (r *OutboxRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.outboxColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

// InsertOutboxSession inserta la entrada dentro de la transacción de sesión del repositorio.
func InsertOutboxSession(sessCtx mongo.SessionContext, coll *mongo.Collection, e sharedDomain.OutboxEntry) error {
	if _, err := coll.InsertOne(sessCtx, toMongoOutboxEntry(e)); err != nil {
		return fmt.Errorf("insert outbox entry %s: %w", e.ID, err)
	}
	return nil
}

func (r *OutboxRepoMongoDB) FetchPending(ctx context.Context, limit, maxRetries int) ([]sharedDomain.OutboxEntry, error) {
	filter := bson.M{
		"status":  string(sharedDomain.OutboxPending),
		"retries": bson.M{"$lt": maxRetries},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

func (r *OutboxRepoMongoDB) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	filter := bson.M{
		"_id":    id.String(),
		"status": bson.M{"$in": bson.A{string(sharedDomain.OutboxPending), string(sharedDomain.OutboxProcessed)}},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status":      string(sharedDomain.OutboxProcessed),
			"processedAt": bson.M{"$ifNull": bson.A{"$processedAt", time.Now().UTC()}},
		}}},
	}

	res, err := r.outboxColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", sharedDomain.ErrOutboxEntryNotFound, id)
	}
	return nil
}

// IncrementRetries usa un pipeline de actualización para que incremento y techo sean atómicos.
func (r *OutboxRepoMongoDB) IncrementRetries(ctx context.Context, id uuid.UUID, maxRetries int) error {
	next := bson.M{"$add": bson.A{"$retries", 1}}
	filter := bson.M{"_id": id.String(), "status": string(sharedDomain.OutboxPending)}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"retries": next,
			"status": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{next, maxRetries}},
				string(sharedDomain.OutboxFailed),
				string(sharedDomain.OutboxPending),
			}},
		}}},
	}

	if _, err := r.outboxColl.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *OutboxRepoMongoDB) ListByStatus(ctx context.Context, status sharedDomain.OutboxStatus, limit int) ([]sharedDomain.OutboxEntry, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

func (r *OutboxRepoMongoDB) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]sharedDomain.OutboxEntry, error) {
	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []sharedDomain.OutboxEntry
	for cursor.Next(ctx) {
		var mo mongoOutboxEntry
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		e, err := fromMongoOutboxEntry(&mo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, cursor.Err()
}

func toMongoOutboxEntry(e sharedDomain.OutboxEntry) mongoOutboxEntry {
	return mongoOutboxEntry{
		ID:            e.ID.String(),
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Topic:         e.Topic,
		Payload:       string(e.Payload),
		Status:        string(e.Status),
		Retries:       e.Retries,
		CreatedAt:     e.CreatedAt,
		ProcessedAt:   e.ProcessedAt,
	}
}

func fromMongoOutboxEntry(mo *mongoOutboxEntry) (sharedDomain.OutboxEntry, error) {
	id, err := uuid.Parse(mo.ID)
	if err != nil {
		return sharedDomain.OutboxEntry{}, fmt.Errorf("invalid UUID in outbox document: %w", err)
	}
	return sharedDomain.OutboxEntry{
		ID:            id,
		AggregateType: mo.AggregateType,
		AggregateID:   mo.AggregateID,
		Topic:         mo.Topic,
		Payload:       []byte(mo.Payload),
		Status:        sharedDomain.OutboxStatus(mo.Status),
		Retries:       mo.Retries,
		CreatedAt:     mo.CreatedAt,
		ProcessedAt:   mo.ProcessedAt,
	}, nil
}

// Verificación en tiempo de compilación.
var (
	_ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
	_ sharedDomain.OutboxReader     = (*OutboxRepoMongoDB)(nil)
)
