package notify

import (
	"testing"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.NotifyCommitted("b1", 1, "trx1")

	select {
	case ev := <-sub:
		assert.Equal(t, block.BlockId("b1"), ev.BlockId)
		assert.Equal(t, block.Revision(1), ev.Rev)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerSubscriberCount(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	require.Equal(t, 0, b.SubscriberCount())
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}
