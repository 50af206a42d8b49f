package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

const collectionLocations = "location_points"

// LocationRepository persists the append-only location history. The latest
// view is always derived by sorting on captured_at, so a late-arriving old
// report never shadows a newer one.
type LocationRepository struct {
	col *mongo.Collection
}

func NewLocationRepository(db *mongo.Database) *LocationRepository {
	return &LocationRepository{col: db.Collection(collectionLocations)}
}

// Insert appends a location point. Points are never updated or deleted.
func (r *LocationRepository) Insert(ctx context.Context, p *domain.LocationPoint) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if p.ID == "" {
		p.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.col.InsertOne(ctx, p)
	return wrapStorage("insert location", err)
}

// latestOne resolves the newest matching point. The secondary _id sort breaks
// captured_at ties in favour of the later insert.
func (r *LocationRepository) latestOne(ctx context.Context, filter bson.M) (*domain.LocationPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{
		{Key: "captured_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	var p domain.LocationPoint
	err := r.col.FindOne(ctx, filter, opts).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrLocationNotFound
		}
		return nil, wrapStorage("find latest location", err)
	}
	return &p, nil
}

func (r *LocationRepository) LatestByDriver(ctx context.Context, driverID string) (*domain.LocationPoint, error) {
	return r.latestOne(ctx, bson.M{"driver_id": driverID})
}

func (r *LocationRepository) LatestByOrder(ctx context.Context, orderID string) (*domain.LocationPoint, error) {
	return r.latestOne(ctx, bson.M{"order_id": orderID})
}

// HistoryByOrder returns the order's full trail, most recent first.
func (r *LocationRepository) HistoryByOrder(ctx context.Context, orderID string) ([]*domain.LocationPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "captured_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	cur, err := r.col.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, wrapStorage("find order history", err)
	}
	defer cur.Close(ctx)

	var points []*domain.LocationPoint
	if err := cur.All(ctx, &points); err != nil {
		return nil, wrapStorage("decode order history", err)
	}
	return points, nil
}

// HistoryByDriver returns the driver's points within [from, to], oldest first.
func (r *LocationRepository) HistoryByDriver(ctx context.Context, driverID string, from, to time.Time) ([]*domain.LocationPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"driver_id":   driverID,
		"captured_at": bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "captured_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapStorage("find driver history", err)
	}
	defer cur.Close(ctx)

	var points []*domain.LocationPoint
	if err := cur.All(ctx, &points); err != nil {
		return nil, wrapStorage("decode driver history", err)
	}
	return points, nil
}

// LatestPerDriver returns each driver's newest point. Used to rebuild the
// in-memory proximity index on startup.
func (r *LocationRepository) LatestPerDriver(ctx context.Context) ([]*domain.LocationPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{
			{Key: "captured_at", Value: -1},
			{Key: "_id", Value: -1},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$driver_id"},
			{Key: "latest", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$latest"}}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapStorage("aggregate latest per driver", err)
	}
	defer cur.Close(ctx)

	var points []*domain.LocationPoint
	if err := cur.All(ctx, &points); err != nil {
		return nil, wrapStorage("decode latest per driver", err)
	}
	return points, nil
}

// EnsureIndexes creates the indexes backing the latest and history queries.
func (r *LocationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "captured_at", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "captured_at", Value: -1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return wrapStorage("create location indexes", err)
}
