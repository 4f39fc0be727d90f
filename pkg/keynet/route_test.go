package keynet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMembers map[PeerID]PeerInfo

func (s stubMembers) Members() map[PeerID]PeerInfo { return s }

func TestFindCoordinatorDeterministic(t *testing.T) {
	members := stubMembers{
		"peer-a": {Addr: "a:1"},
		"peer-b": {Addr: "b:1"},
		"peer-c": {Addr: "c:1"},
	}
	rt := NewRouter(members)

	first, err := rt.FindCoordinator(context.Background(), []byte("block-123"), nil)
	require.NoError(t, err)

	second, err := rt.FindCoordinator(context.Background(), []byte("block-123"), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "routing the same key twice must pick the same coordinator")
}

func TestFindCoordinatorRespectsExclusion(t *testing.T) {
	members := stubMembers{
		"peer-a": {Addr: "a:1"},
		"peer-b": {Addr: "b:1"},
	}
	rt := NewRouter(members)

	first, err := rt.FindCoordinator(context.Background(), []byte("block-xyz"), nil)
	require.NoError(t, err)

	second, err := rt.FindCoordinator(context.Background(), []byte("block-xyz"), map[PeerID]struct{}{first: {}})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestFindCoordinatorNoPeersLeft(t *testing.T) {
	members := stubMembers{"peer-a": {Addr: "a:1"}}
	rt := NewRouter(members)

	_, err := rt.FindCoordinator(context.Background(), []byte("k"), map[PeerID]struct{}{"peer-a": {}})
	assert.ErrorIs(t, err, ErrNoCoordinator)
}

func TestFindClusterReturnsMembership(t *testing.T) {
	members := stubMembers{"peer-a": {Addr: "a:1"}, "peer-b": {Addr: "b:1"}}
	rt := NewRouter(members)

	got, err := rt.FindCluster(context.Background(), []byte("k"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
