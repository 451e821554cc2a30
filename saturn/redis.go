package saturn

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisDispatcher publishes to one redis stream per topic. Per ordering
// key, publishes are chained so XADDs happen in publish order; the first
// failure pauses the key and fails every queued publish behind it until
// Resume is called.
type RedisDispatcher struct {
	client *redis.Client

	mu   sync.Mutex
	keys map[string]*orderingKeyState
}

type orderingKeyState struct {
	mu     sync.Mutex
	paused bool
	tail   <-chan struct{}
}

func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{
		client: client,
		keys:   make(map[string]*orderingKeyState),
	}
}

func (d *RedisDispatcher) state(topic, orderingKey string) *orderingKeyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := topic + "\x00" + orderingKey
	ks, ok := d.keys[k]
	if !ok {
		ks = &orderingKeyState{}
		d.keys[k] = ks
	}
	return ks
}

func (d *RedisDispatcher) Publish(ctx context.Context, topic, orderingKey string, payload []byte) *PublishResult {
	res := newPublishResult()
	ks := d.state(topic, orderingKey)

	// Chain onto the previous publish for this key so stream order always
	// matches publish order, whatever goroutine scheduling does.
	ks.mu.Lock()
	prev := ks.tail
	done := make(chan struct{})
	ks.tail = done
	ks.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}

		ks.mu.Lock()
		paused := ks.paused
		ks.mu.Unlock()
		if paused {
			res.resolve("", ErrOrderingKeyPaused)
			return
		}

		id, err := d.client.XAdd(ctx, &redis.XAddArgs{
			Stream: topic,
			Values: map[string]interface{}{
				"ordering_key": orderingKey,
				"payload":      payload,
			},
		}).Result()
		if err != nil {
			ks.mu.Lock()
			ks.paused = true
			ks.mu.Unlock()
			res.resolve("", fmt.Errorf("xadd to %q failed: %w", topic, err))
			return
		}
		res.resolve(id, nil)
	}()

	return res
}

func (d *RedisDispatcher) Resume(ctx context.Context, topic, orderingKey string) error {
	ks := d.state(topic, orderingKey)
	ks.mu.Lock()
	ks.paused = false
	ks.mu.Unlock()
	return nil
}
