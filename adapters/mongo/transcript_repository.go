package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
)

// TranscriptRepository implements repositories.TranscriptRepository using MongoDB
type TranscriptRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database, collection string, logger *zap.Logger) *TranscriptRepository {
	if collection == "" {
		collection = "sessions"
	}
	return &TranscriptRepository{
		collection: db.Collection(collection),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes used by List and outcome queries
func (r *TranscriptRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Index on started_at for newest-first listing
	startedAtIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	}

	// Index on outcome and started_at for failure reports
	outcomeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "outcome", Value: 1},
			{Key: "started_at", Value: -1},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{startedAtIndex, outcomeIndex}); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	r.logger.Info("Session indexes created")
	return nil
}

// Save implements repositories.TranscriptRepository. A record with an existing id is replaced.
func (r *TranscriptRepository) Save(ctx context.Context, record entities.SessionRecord) error {
	if record.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, opts); err != nil {
		return fmt.Errorf("failed to save session %s: %w", record.ID, err)
	}
	return nil
}

// Get implements repositories.TranscriptRepository
func (r *TranscriptRepository) Get(ctx context.Context, id string) (*entities.SessionRecord, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var record entities.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNoSession
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &record, nil
}

// List implements repositories.TranscriptRepository
func (r *TranscriptRepository) List(ctx context.Context, limit int) ([]entities.SessionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	records := []entities.SessionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return records, nil
}
