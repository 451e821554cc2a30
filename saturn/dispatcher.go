package saturn

import (
	"context"
	"errors"
)

// ErrOrderingKeyPaused is returned by publishes on an ordering key whose
// stream is paused after an earlier failure. Resume must be called before
// further publishes on that key are honored.
var ErrOrderingKeyPaused = errors.New("publishes on this ordering key are paused after a failure")

// Dispatcher is a per-topic FIFO publisher towards the compute cluster.
// Within one (topic, ordering key) pair messages are delivered in publish
// order until a publish fails; after a failure the key is paused and
// Resume unblocks it.
type Dispatcher interface {
	// Publish is non-blocking; the returned result resolves to the
	// assigned message id once the publish settles.
	Publish(ctx context.Context, topic, orderingKey string, payload []byte) *PublishResult

	// Resume lifts the pause installed by a failed publish on the key.
	Resume(ctx context.Context, topic, orderingKey string) error
}

// PublishResult is the future for one published message.
type PublishResult struct {
	done chan struct{}
	id   string
	err  error
}

func newPublishResult() *PublishResult {
	return &PublishResult{done: make(chan struct{})}
}

func (r *PublishResult) resolve(id string, err error) {
	r.id = id
	r.err = err
	close(r.done)
}

// Get blocks until the publish settles or the context is done and returns
// the assigned message id.
func (r *PublishResult) Get(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.id, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ResolvedResult returns an already settled result, for dispatchers that
// publish synchronously.
func ResolvedResult(id string, err error) *PublishResult {
	r := newPublishResult()
	r.resolve(id, err)
	return r
}
