package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/repo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startTestServer(t *testing.T, r *repo.Repo) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	RegisterRepoServer(gs, r)
	go gs.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		gs.Stop()
	}
}

func TestClientServerPendAndCommitRoundTrip(t *testing.T) {
	r := repo.New(nil, nil, zerolog.Nop())
	conn, cleanup := startTestServer(t, r)
	defer cleanup()
	client := &Client{conn: conn}

	ctx := context.Background()
	trx := block.TrxId("trx1")
	transforms := block.EmptyTransforms()
	block.AddInsert(transforms, &block.Block{Id: "b1", Fields: block.Fields{"n": float64(1)}})

	pr, err := client.Pend(ctx, repo.PendRequest{TrxId: trx, Transforms: transforms, Policy: repo.PolicyContinue})
	require.NoError(t, err)
	assert.True(t, pr.Success)

	tail := block.BlockId("b1")
	cr, err := client.Commit(ctx, repo.CommitRequest{TrxId: trx, Rev: 1, BlockIds: []block.BlockId{"b1"}, TailId: &tail})
	require.NoError(t, err)
	assert.True(t, cr.Success)

	gctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := client.Get(gctx, []block.BlockId{"b1"}, repo.GetContext{})
	require.NoError(t, err)
	require.Contains(t, got, block.BlockId("b1"))
	assert.Equal(t, block.Revision(1), got["b1"].Latest)
}

func TestClientCancelRoundTrip(t *testing.T) {
	r := repo.New(nil, nil, zerolog.Nop())
	conn, cleanup := startTestServer(t, r)
	defer cleanup()
	client := &Client{conn: conn}

	ctx := context.Background()
	trx := block.TrxId("trx1")
	transforms := block.EmptyTransforms()
	block.AddInsert(transforms, &block.Block{Id: "b1", Fields: block.Fields{}})

	_, err := client.Pend(ctx, repo.PendRequest{TrxId: trx, Transforms: transforms, Policy: repo.PolicyContinue})
	require.NoError(t, err)

	require.NoError(t, client.Cancel(ctx, trx, []block.BlockId{"b1"}))

	got, err := client.Get(ctx, []block.BlockId{"b1"}, repo.GetContext{})
	require.NoError(t, err)
	assert.Empty(t, got["b1"].Pendings)
}
