package rpc

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/repo"
	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name advertised by RegisterRepoServer,
// matching the "<package>.<Service>" convention protoc-gen-go-grpc uses.
const ServiceName = "blockmesh.repo.RepoService"

// RepoServer is implemented by anything that can serve the four repo
// operations over the wire — an in-process *repo.Repo satisfies it
// directly since its method shapes already match.
type RepoServer interface {
	Get(ctx context.Context, ids []block.BlockId, gctx repo.GetContext) (map[block.BlockId]repo.GetResult, error)
	Pend(ctx context.Context, req repo.PendRequest) (repo.PendResult, error)
	Cancel(ctx context.Context, trxId block.TrxId, ids []block.BlockId) error
	Commit(ctx context.Context, req repo.CommitRequest) (repo.CommitResult, error)
}

func handleGet(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		results, err := srv.(RepoServer).Get(ctx, in.Ids, in.Context)
		return &GetResponse{Results: results}, err
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		r := req.(*GetRequest)
		results, err := srv.(RepoServer).Get(ctx, r.Ids, r.Context)
		return &GetResponse{Results: results}, err
	}
	return interceptor(ctx, in, info, handler)
}

func handlePend(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(repo.PendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RepoServer).Pend(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Pend"}
	handler := func(ctx context.Context, req any) (any, error) {
		res, err := srv.(RepoServer).Pend(ctx, *req.(*repo.PendRequest))
		return &res, err
	}
	return interceptor(ctx, in, info, handler)
}

func handleCancel(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		err := srv.(RepoServer).Cancel(ctx, in.TrxId, in.Ids)
		return &CancelResponse{}, err
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Cancel"}
	handler := func(ctx context.Context, req any) (any, error) {
		r := req.(*CancelRequest)
		err := srv.(RepoServer).Cancel(ctx, r.TrxId, r.Ids)
		return &CancelResponse{}, err
	}
	return interceptor(ctx, in, info, handler)
}

func handleCommit(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(repo.CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RepoServer).Commit(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Commit"}
	handler := func(ctx context.Context, req any) (any, error) {
		res, err := srv.(RepoServer).Commit(ctx, *req.(*repo.CommitRequest))
		return &res, err
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a RepoService with Get/Pend/Cancel/Commit unary RPCs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RepoServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Get",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return handleGet(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Pend",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return handlePend(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Cancel",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return handleCancel(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Commit",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return handleCommit(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blockmesh/repo.proto",
}

// RegisterRepoServer registers srv against s using the hand-written
// ServiceDesc above, mirroring the generated RegisterXxxServer helper.
func RegisterRepoServer(s grpc.ServiceRegistrar, srv RepoServer) {
	s.RegisterService(&ServiceDesc, srv)
}
