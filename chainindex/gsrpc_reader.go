package chainindex

import (
	"context"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// GSRPCReader implements ChainReader against a live Substrate chain over
// go-substrate-rpc-client, reading the CID string stored in the
// Modules.Modules(pubkey) storage map.
type GSRPCReader struct {
	api *gsrpc.SubstrateAPI
}

// NewGSRPCReader dials url and caches the chain's metadata.
func NewGSRPCReader(url string) (*GSRPCReader, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Configuration, "chainindex.NewGSRPCReader", err)
	}
	return &GSRPCReader{api: api}, nil
}

// ModuleCID queries storage map Modules.Modules(pubkey) and returns the CID
// string registered for that owner.
func (r *GSRPCReader) ModuleCID(_ context.Context, pubkey [32]byte) (string, error) {
	meta, err := r.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "chainindex.GSRPCReader.ModuleCID", err)
	}

	key, err := types.CreateStorageKey(meta, "Modules", "Modules", pubkey[:])
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "chainindex.GSRPCReader.ModuleCID", err)
	}

	var cid types.Text
	ok, err := r.api.RPC.State.GetStorageLatest(key, &cid)
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "chainindex.GSRPCReader.ModuleCID", err)
	}
	if !ok {
		return "", toolerrs.Newf(toolerrs.NotFound, "chainindex.GSRPCReader.ModuleCID", "no module registered for this owner")
	}
	return string(cid), nil
}
