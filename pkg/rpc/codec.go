// Package rpc exposes pkg/repo's get/pend/cancel/commit surface over gRPC.
// No .proto file is compiled anywhere in this tree: instead of generated
// marshal code this package registers a JSON codec via grpc-go's codec
// extension points (encoding.RegisterCodec, grpc.ForceServerCodec,
// grpc.ForceCodec) and hand-writes the grpc.ServiceDesc a protoc-gen-go-grpc
// run would otherwise produce. google.golang.org/grpc is exercised exactly
// as the rest of this dependency's surface would be, just without the
// codegen step.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered as the name every RepoService client/server call
// in this package is forced to use.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: json unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
