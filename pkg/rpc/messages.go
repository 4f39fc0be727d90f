package rpc

import (
	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/repo"
)

// Wire request/response envelopes. These reuse pkg/repo's own request and
// result types directly (they are already plain, JSON-encodable structs)
// rather than duplicating near-identical wire structs; block.Fields values
// survive a JSON round trip, though numeric field values come back as
// float64 per encoding/json's default number handling.

type GetRequest struct {
	Ids     []block.BlockId
	Context repo.GetContext
}

type GetResponse struct {
	Results map[block.BlockId]repo.GetResult
}

type PendResponse = repo.PendResult

type CancelRequest struct {
	TrxId block.TrxId
	Ids   []block.BlockId
}

type CancelResponse struct{}

type CommitResponse = repo.CommitResult
