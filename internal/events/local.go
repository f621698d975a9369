package events

import (
	"context"
	"sync"

	"livestock/internal/models"

	"go.uber.org/zap"
)

type subscriber struct {
	listingId string
	ch        chan models.ListingEvent
}

// LocalBus fans events out to in-process subscribers. A subscriber that
// does not keep up loses events rather than blocking publishers.
type LocalBus struct {
	log *zap.Logger

	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextId int
	closed bool
}

func NewLocalBus(log *zap.Logger) *LocalBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalBus{
		log:  log.Named("bus"),
		subs: make(map[int]*subscriber),
	}
}

func (b *LocalBus) Publish(ctx context.Context, event models.ListingEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if len(sub.listingId) > 0 && sub.listingId != event.ListingId {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.log.Warn("dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("listing_id", event.ListingId),
				zap.String("type", string(event.Type)))
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, listingId string) (<-chan models.ListingEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errBusClosed
	}
	id := b.nextId
	b.nextId++
	sub := &subscriber{listingId: listingId, ch: make(chan models.ListingEvent, subscriberBuffer)}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(id)
	}()

	return sub.ch, nil
}

func (b *LocalBus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.closed = true
	return nil
}
