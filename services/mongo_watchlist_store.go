package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockwatch_backend/models"
)

// MongoDB names
const (
	MongoDBName              = "stockwatch"
	MongoWatchlistCollection = "watchlist"
	MongoConnectTimeout      = 10 * time.Second
)

// mongoWatchlistDoc is the persisted shape of a watchlist entry. Buy price is
// stored as a decimal string; shopspring decimals do not round-trip through bson.
type mongoWatchlistDoc struct {
	ID        uint      `bson:"_id"`
	UserID    uint      `bson:"user_id"`
	Symbol    string    `bson:"symbol"`
	BuyPrice  string    `bson:"buy_price"`
	Note      string    `bson:"note,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoWatchlistStore stores watchlist entries in MongoDB. Selected with
// WATCHLIST_STORE=mongo; the relational store remains the default.
type MongoWatchlistStore struct {
	client     *mongo.Client
	collection *mongo.Collection

	mu     sync.Mutex
	nextID uint
}

// NewMongoWatchlistStore connects to MongoDB and prepares the watchlist collection
func NewMongoWatchlistStore(uri string) (*MongoWatchlistStore, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), MongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	store := &MongoWatchlistStore{
		client:     client,
		collection: client.Database(MongoDBName).Collection(MongoWatchlistCollection),
	}

	if err := store.loadMaxID(ctx); err != nil {
		return nil, err
	}

	log.Println("MongoDB watchlist store connected")
	return store, nil
}

// Close disconnects the MongoDB client
func (s *MongoWatchlistStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoWatchlistStore) loadMaxID(ctx context.Context) error {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	var doc mongoWatchlistDoc
	err := s.collection.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		s.nextID = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read max watchlist id: %w", err)
	}
	s.nextID = doc.ID
	return nil
}

func (s *MongoWatchlistStore) allocateID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func toMongoDoc(entry *models.WatchlistEntry) mongoWatchlistDoc {
	return mongoWatchlistDoc{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Symbol:    entry.Symbol,
		BuyPrice:  entry.BuyPrice.String(),
		Note:      entry.Note,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}

func fromMongoDoc(doc mongoWatchlistDoc) models.WatchlistEntry {
	buyPrice, err := decimal.NewFromString(doc.BuyPrice)
	if err != nil {
		buyPrice = decimal.Zero
	}
	return models.WatchlistEntry{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Symbol:    doc.Symbol,
		BuyPrice:  buyPrice,
		Note:      doc.Note,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func (s *MongoWatchlistStore) Create(ctx context.Context, entry *models.WatchlistEntry) error {
	filter := bson.D{{Key: "user_id", Value: entry.UserID}, {Key: "symbol", Value: entry.Symbol}}
	count, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate entry: %w", err)
	}
	if count > 0 {
		return ErrDuplicateEntry
	}

	now := time.Now()
	entry.ID = s.allocateID()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, toMongoDoc(entry)); err != nil {
		return fmt.Errorf("failed to insert watchlist entry: %w", err)
	}
	return nil
}

func (s *MongoWatchlistStore) Update(ctx context.Context, entry *models.WatchlistEntry) error {
	filter := bson.D{{Key: "_id", Value: entry.ID}, {Key: "user_id", Value: entry.UserID}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "symbol", Value: entry.Symbol},
		{Key: "buy_price", Value: entry.BuyPrice.String()},
		{Key: "note", Value: entry.Note},
		{Key: "updated_at", Value: time.Now()},
	}}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoWatchlistDoc
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update watchlist entry: %w", err)
	}

	*entry = fromMongoDoc(doc)
	return nil
}

func (s *MongoWatchlistStore) Delete(ctx context.Context, userID, entryID uint) error {
	filter := bson.D{{Key: "_id", Value: entryID}, {Key: "user_id", Value: userID}}
	result, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete watchlist entry: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *MongoWatchlistStore) GetByID(ctx context.Context, userID, entryID uint) (*models.WatchlistEntry, error) {
	filter := bson.D{{Key: "_id", Value: entryID}, {Key: "user_id", Value: userID}}
	var doc mongoWatchlistDoc
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist entry: %w", err)
	}
	entry := fromMongoDoc(doc)
	return &entry, nil
}

func (s *MongoWatchlistStore) ListEntries(ctx context.Context, userID uint) ([]models.WatchlistEntry, error) {
	filter := bson.D{{Key: "user_id", Value: userID}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.WatchlistEntry
	for cursor.Next(ctx) {
		var doc mongoWatchlistDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode watchlist entry: %w", err)
		}
		entries = append(entries, fromMongoDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("watchlist cursor error: %w", err)
	}
	return entries, nil
}

func (s *MongoWatchlistStore) DistinctUserIDs(ctx context.Context) ([]uint, error) {
	values, err := s.collection.Distinct(ctx, "user_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct user ids: %w", err)
	}

	ids := make([]uint, 0, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case int32:
			ids = append(ids, uint(n))
		case int64:
			ids = append(ids, uint(n))
		case float64:
			ids = append(ids, uint(n))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
