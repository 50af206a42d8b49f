package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

const collectionIncidents = "incidents"

// IncidentRepository persists incident reports. Incidents are never deleted;
// the expiry sweep or a manual deactivation flips the active flag.
type IncidentRepository struct {
	col *mongo.Collection
}

func NewIncidentRepository(db *mongo.Database) *IncidentRepository {
	return &IncidentRepository{col: db.Collection(collectionIncidents)}
}

func (r *IncidentRepository) Insert(ctx context.Context, inc *domain.Incident) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, inc)
	return wrapStorage("insert incident", err)
}

func (r *IncidentRepository) FindByID(ctx context.Context, id string) (*domain.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var inc domain.Incident
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&inc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrIncidentNotFound
		}
		return nil, wrapStorage("find incident", err)
	}
	return &inc, nil
}

// ListActive returns incidents that are active and not yet expired at now.
func (r *IncidentRepository) ListActive(ctx context.Context, now time.Time) ([]*domain.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"active":     true,
		"expires_at": bson.M{"$gt": now},
	}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, wrapStorage("find active incidents", err)
	}
	defer cur.Close(ctx)

	var incidents []*domain.Incident
	if err := cur.All(ctx, &incidents); err != nil {
		return nil, wrapStorage("decode active incidents", err)
	}
	return incidents, nil
}

// Deactivate flips active to false. Deactivating an already inactive incident
// succeeds; an unknown id is reported as not found.
func (r *IncidentRepository) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return wrapStorage("deactivate incident", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIncidentNotFound
	}
	return nil
}

// DeactivateExpired flips active to false for every incident whose lifetime
// has elapsed, in a single update.
func (r *IncidentRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"active":     true,
		"expires_at": bson.M{"$lte": now},
	}
	res, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return 0, wrapStorage("deactivate expired incidents", err)
	}
	return res.ModifiedCount, nil
}

// EnsureIndexes creates the indexes backing the active-incident queries.
func (r *IncidentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "reporter_driver_id", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return wrapStorage("create incident indexes", err)
}
