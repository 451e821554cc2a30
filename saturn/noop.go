package saturn

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NoopDispatcher accepts every publish without talking to anything. Used
// when actions are disabled (test mode). Message ids still increase in
// publish order so ordering assertions hold.
type NoopDispatcher struct {
	seq atomic.Int64
}

func NewNoopDispatcher() *NoopDispatcher {
	return &NoopDispatcher{}
}

func (d *NoopDispatcher) Publish(ctx context.Context, topic, orderingKey string, payload []byte) *PublishResult {
	return ResolvedResult(fmt.Sprintf("disabled-%d", d.seq.Add(1)), nil)
}

func (d *NoopDispatcher) Resume(ctx context.Context, topic, orderingKey string) error {
	return nil
}
