package events

import (
	"context"
	"encoding/json"
	"fmt"

	"livestock/internal/config"
	"livestock/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "listing:"

func channelFor(listingId string) string {
	return channelPrefix + listingId
}

// RedisBus publishes listing events over redis pub/sub so that every
// instance of the service and its viewers see the same changes.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisBus(ctx context.Context, cfg *config.RedisConfig, log *zap.Logger) (*RedisBus, error) {
	if cfg == nil || len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("events.NewRedisBus: redis address is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("events.NewRedisBus: redis connection failed: %w", err)
	}

	log.Info("redis bus initialized", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &RedisBus{client: client, log: log.Named("bus")}, nil
}

func (b *RedisBus) Publish(ctx context.Context, event models.ListingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events.RedisBus.Publish: %w", err)
	}

	err = b.client.Publish(ctx, channelFor(event.ListingId), data).Err()
	if err != nil {
		b.log.Error("redis publish failed", zap.String("listing_id", event.ListingId), zap.Error(err))
		return fmt.Errorf("events.RedisBus.Publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, listingId string) (<-chan models.ListingEvent, error) {
	var pubsub *redis.PubSub
	if len(listingId) == 0 {
		pubsub = b.client.PSubscribe(ctx, channelPrefix+"*")
	} else {
		pubsub = b.client.Subscribe(ctx, channelFor(listingId))
	}

	// wait for the subscription to be confirmed so no event published after
	// Subscribe returns can be missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("events.RedisBus.Subscribe: %w", err)
	}

	out := make(chan models.ListingEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.ListingEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Warn("skipping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
