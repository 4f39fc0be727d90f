package rpc

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/cuemby/blockmesh/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Server hosts a RepoServer over gRPC using the JSON codec in place of a
// generated protobuf one.
type Server struct {
	grpc   *grpc.Server
	logger zerolog.Logger
}

// NewServer wraps repo behind a gRPC listener, forcing every call onto the
// JSON codec via grpc.ForceServerCodec and timing every call through
// metricsInterceptor.
func NewServer(repo RepoServer, logger zerolog.Logger) *Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(metricsInterceptor()),
	)
	RegisterRepoServer(s, repo)
	return &Server{grpc: s, logger: logger}
}

// metricsInterceptor records RPCRequestsTotal and RPCRequestDuration for
// every unary call, the way pkg/api/interceptor.go chains a cross-cutting
// concern in front of the teacher's handlers.
func metricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := methodName(info.FullMethod)
		timer := metrics.NewTimer()
		resp, err := handler(ctx, req)
		timer.ObserveDurationVec(metrics.RPCRequestDuration, method)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RPCRequestsTotal.WithLabelValues(method, status).Inc()
		return resp, err
	}
}

func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}

// Serve listens on addr and blocks serving RPCs until Stop is called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", addr, err)
	}
	s.logger.Info().Str("addr", addr).Msg("rpc server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the server, waiting for in-flight RPCs to finish.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
