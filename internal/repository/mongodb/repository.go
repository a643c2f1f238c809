package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/repository"
)

const agentFilterID = "a"

// StockRepository implements repository.StockRepository on MongoDB.
type StockRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewStockRepository connects to MongoDB and prepares the stock collection.
func NewStockRepository(ctx context.Context, uri, dbName, collName string, logger *zap.Logger) (*StockRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri).SetRegistry(NewRegistry())
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &StockRepository{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
		logger: logger,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *StockRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "productKey", Value: 1}, {Key: "unit", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("product_unit_unique"),
		},
		{
			Keys:    bson.D{{Key: "agentStocks.agentId", Value: 1}},
			Options: options.Index().SetName("agent_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("create stock indexes: %w", err)
	}
	return nil
}

// Create inserts a new stock record.
func (r *StockRepository) Create(ctx context.Context, rec *models.StockRecord) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to insert stock record: %w", err)
	}
	return nil
}

// FindByID loads one record including its movement log.
func (r *StockRepository) FindByID(ctx context.Context, id string) (*models.StockRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindByProduct loads the record for a product name (case-insensitive) and unit.
func (r *StockRepository) FindByProduct(ctx context.Context, product string, unit models.Unit) (*models.StockRecord, error) {
	return r.findOne(ctx, bson.M{"productKey": models.ProductKey(product), "unit": unit.Normalize()})
}

func (r *StockRepository) findOne(ctx context.Context, filter bson.M) (*models.StockRecord, error) {
	var rec models.StockRecord
	if err := r.coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load stock record: %w", err)
	}
	return &rec, nil
}

// List returns matching records sorted by product, without the movement log.
func (r *StockRepository) List(ctx context.Context, filter models.StockFilter) ([]models.StockRecord, error) {
	opts := options.Find().
		SetProjection(bson.M{"movements": 0}).
		SetSort(bson.D{{Key: "productKey", Value: 1}, {Key: "unit", Value: 1}})

	cursor, err := r.coll.Find(ctx, listFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock records: %w", err)
	}

	var recs []models.StockRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode stock records: %w", err)
	}
	return recs, nil
}

func listFilter(f models.StockFilter) bson.M {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["isActive"] = true
	}
	if f.Product != "" {
		filter["productKey"] = bson.M{"$regex": regexp.QuoteMeta(models.ProductKey(f.Product))}
	}
	if f.Unit != "" {
		filter["unit"] = f.Unit.Normalize()
	}
	if f.LowStockOnly {
		filter["isLowStock"] = true
	}
	if f.ExpiredOnly {
		if f.AsOf.IsZero() {
			filter["isExpired"] = true
		} else {
			filter["expiryDate"] = bson.M{"$lt": f.AsOf}
		}
	}
	if f.AgentID != "" {
		filter["agentStocks.agentId"] = f.AgentID
	}
	return filter
}

// Apply turns the mutation into a single update document conditioned on the
// record version: counter $inc, derived $set and movement $push land together.
func (r *StockRepository) Apply(ctx context.Context, id string, version int64, m repository.Mutation) (*models.StockRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}

	filter := bson.M{"_id": oid, "version": version}
	update, arrayFilters := buildUpdate(m)

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(arrayFilters) > 0 {
		filter["agentStocks.agentId"] = m.Agent.AgentID
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	var rec models.StockRecord
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("stock update lost version race", zap.String("stock_id", id), zap.Int64("version", version))
			return nil, repository.ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to update stock record: %w", err)
	}
	return &rec, nil
}

func buildUpdate(m repository.Mutation) (bson.M, []interface{}) {
	inc := bson.M{"version": int64(1)}
	set := bson.M{
		"closingStock":   m.Derived.ClosingStock,
		"stockAvailable": m.Derived.StockAvailable,
		"isLowStock":     m.Derived.IsLowStock,
		"isExpired":      m.Derived.IsExpired,
		"updatedAt":      m.At,
	}
	push := bson.M{}
	var unset bson.M
	var arrayFilters []interface{}

	counters := map[string]models.Quantity{
		"openingStock":   m.Counters.OpeningStock,
		"totalPurchases": m.Counters.TotalPurchases,
		"totalSales":     m.Counters.TotalSales,
		"stockGiven":     m.Counters.StockGiven,
		"stockDelivered": m.Counters.StockDelivered,
		"salesReturns":   m.Counters.SalesReturns,
	}
	for field, delta := range counters {
		if !delta.IsZero() {
			inc[field] = delta
		}
	}

	if s := m.Settings; s != nil {
		if s.MinimumStock != nil {
			set["minimumStock"] = *s.MinimumStock
		}
		if s.ClearExpiry {
			unset = bson.M{"expiryDate": ""}
		} else if s.ExpiryDate != nil {
			set["expiryDate"] = *s.ExpiryDate
		}
		if s.IsActive != nil {
			set["isActive"] = *s.IsActive
		}
	}

	if a := m.Agent; a != nil {
		if a.Create != nil {
			push["agentStocks"] = *a.Create
		} else {
			prefix := "agentStocks.$[" + agentFilterID + "]."
			agentCounters := map[string]models.Quantity{
				"stockAllocated": a.Allocated,
				"stockDelivered": a.Delivered,
				"stockReturned":  a.Returned,
				"stockInHand":    a.InHand,
			}
			for field, delta := range agentCounters {
				if !delta.IsZero() {
					inc[prefix+field] = delta
				}
			}
			if a.Status != "" {
				set[prefix+"status"] = a.Status
			}
			if a.AgentName != "" {
				set[prefix+"agentName"] = a.AgentName
			}
			set[prefix+"lastUpdated"] = m.At
			arrayFilters = append(arrayFilters, bson.M{agentFilterID + ".agentId": a.AgentID})
		}
	}

	if m.Movement != nil {
		push["movements"] = *m.Movement
	}

	update := bson.M{"$inc": inc, "$set": set}
	if len(push) > 0 {
		update["$push"] = push
	}
	if unset != nil {
		update["$unset"] = unset
	}
	return update, arrayFilters
}

// Ping checks connectivity for health checks.
func (r *StockRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *StockRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
