package metrics

import (
	"context"
	"fmt"

	"github.com/bft-labs/hybrid-chain-logger/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GroupHistoryResult contains both the data and total count for pagination
type GroupHistoryResult struct {
	Data  []types.GroupSummary
	Total int
}

// GetGroupHistory pages through stored summaries whose range intersects
// [fromHeight, toHeight], ordered by end height.
func GetGroupHistory(
	ctx context.Context, coll *mongo.Collection,
	fromHeight, toHeight uint64, page, perPage int,
) (*GroupHistoryResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 100
	}

	filter := bson.D{
		{Key: "endHeight", Value: bson.D{{Key: "$gte", Value: clampInt64(fromHeight)}}},
		{Key: "startHeight", Value: bson.D{{Key: "$lte", Value: clampInt64(toHeight)}}},
	}

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error counting documents: %w", err)
	}
	if total == 0 {
		return &GroupHistoryResult{Data: []types.GroupSummary{}, Total: 0}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "endHeight", Value: 1}}).
		SetSkip(int64((page - 1) * perPage)).
		SetLimit(int64(perPage))

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding documents: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := []types.GroupSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("error decoding documents: %w", err)
	}

	return &GroupHistoryResult{Data: summaries, Total: int(total)}, nil
}

// Heights are stored as int64; the open upper bound must not wrap.
func clampInt64(h uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if h > maxInt64 {
		return maxInt64
	}
	return int64(h)
}
