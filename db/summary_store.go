package db

import (
	"context"
	"fmt"

	"github.com/bft-labs/hybrid-chain-logger/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SummaryCollection = "group_statistics"

// SummaryStore persists group summaries, one document per end height.
type SummaryStore struct {
	coll *mongo.Collection
}

func NewSummaryStore(database *mongo.Database) *SummaryStore {
	return &SummaryStore{coll: database.Collection(SummaryCollection)}
}

func (s *SummaryStore) Collection() *mongo.Collection {
	return s.coll
}

// EnsureIndexes creates the unique end height index used for upserts and
// range queries.
func (s *SummaryStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "endHeight", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "startHeight", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create summary indexes: %w", err)
	}
	return nil
}

// Deliver upserts the summary so a redelivered group does not duplicate.
func (s *SummaryStore) Deliver(ctx context.Context, summary types.GroupSummary) error {
	filter := bson.D{{Key: "endHeight", Value: summary.EndHeight}}
	_, err := s.coll.ReplaceOne(ctx, filter, summary, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store summary %d-%d: %w", summary.StartHeight, summary.EndHeight, err)
	}
	return nil
}
