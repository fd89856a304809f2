package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"artpost/internal/domain"
)

const (
	defaultArtsKey          = "arts"
	defaultSubscriptionsKey = "subscriptions"
)

// MetadataRepositoryRedis implements domain.MetadataRepository on Redis.
// Records live in one hash field per id; subscriptions are read from a hash
// of JSON-encoded browser PushSubscription objects.
type MetadataRepositoryRedis struct {
	client           redis.UniversalClient
	logger           zerolog.Logger
	artsKey          string
	subscriptionsKey string
}

// NewRedisMetadataRepository builds a repository using the default "arts"
// and "subscriptions" namespaces.
func NewRedisMetadataRepository(client redis.UniversalClient, logger zerolog.Logger) *MetadataRepositoryRedis {
	return &MetadataRepositoryRedis{
		client:           client,
		logger:           logger,
		artsKey:          defaultArtsKey,
		subscriptionsKey: defaultSubscriptionsKey,
	}
}

func (r *MetadataRepositoryRedis) WriteRecord(ctx context.Context, id string, record domain.ArtRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode art %s: %w", id, err)
	}
	if err := r.client.HSet(ctx, r.artsKey, id, data).Err(); err != nil {
		return fmt.Errorf("write art %s: %w", id, err)
	}
	return nil
}

func (r *MetadataRepositoryRedis) GetRecord(ctx context.Context, id string) (*domain.ArtRecord, error) {
	data, err := r.client.HGet(ctx, r.artsKey, id).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec domain.ArtRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode art %s: %w", id, err)
	}
	rec.ID = id
	return &rec, nil
}

// ReadSubscriptions returns a snapshot of the subscriptions hash. Entries
// that do not decode are skipped.
func (r *MetadataRepositoryRedis) ReadSubscriptions(ctx context.Context) (domain.Snapshot, error) {
	raw, err := r.client.HGetAll(ctx, r.subscriptionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	snapshot := make(domain.Snapshot, len(raw))
	for id, value := range raw {
		var sub domain.Subscription
		if err := json.Unmarshal([]byte(value), &sub); err != nil {
			r.logger.Warn().Err(err).Str("subscription_id", id).Msg("skipping undecodable subscription")
			continue
		}
		sub.ID = id
		snapshot[id] = sub
	}
	return snapshot, nil
}

var _ domain.MetadataRepository = (*MetadataRepositoryRedis)(nil)
