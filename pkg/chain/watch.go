package chain

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/notify"
)

// WatchTail blocks on sub until it observes a commit that could have
// grown this chain — its header, or whichever data block is currently
// its tail — so a long-lived reader can learn about a new tail without
// polling GetTail in a loop. Context cancellation unblocks it early with
// ctx.Err(); a closed subscriber unblocks it with notify.ErrClosed.
func (c *Chain) WatchTail(ctx context.Context, ts TrxStore, sub notify.Subscriber) (notify.Event, error) {
	tailId, err := c.GetTail(ctx, ts)
	if err != nil {
		return notify.Event{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return notify.Event{}, ctx.Err()
		case ev, ok := <-sub:
			if !ok {
				return notify.Event{}, notify.ErrClosed
			}
			if ev.BlockId == c.HeaderId || ev.BlockId == tailId {
				return ev, nil
			}
		}
	}
}
