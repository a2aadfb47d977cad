package chainindex

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modnet-labs/registry-scheduler/ipfsfetch"
	"github.com/modnet-labs/registry-scheduler/modcrypto"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// ChainReader is the subset of chain RPC behavior the resolver needs: look
// up the CID stored for a module's pubkey in the Modules.Modules storage
// map. Satisfied by *GSRPCReader in production and a fake in tests.
type ChainReader interface {
	ModuleCID(ctx context.Context, pubkey [32]byte) (string, error)
}

// Resolver implements resolve_chain_uri: chain://<id> -> ModulePointer,
// trying a local index file, then an HTTP index, then chain RPC, in that
// order.
type Resolver struct {
	LocalIndexFile string
	HTTPIndexURL   string
	Chain          ChainReader
	Fetcher        *ipfsfetch.Fetcher
}

// Resolve resolves uri (chain://<module-id>) to a verified ModulePointer.
func (r *Resolver) Resolve(ctx context.Context, uri string) (ModulePointer, error) {
	id, err := parseChainURI(uri)
	if err != nil {
		return ModulePointer{}, err
	}

	switch {
	case r.LocalIndexFile != "":
		return loadLocalIndex(r.LocalIndexFile, id)
	case r.HTTPIndexURL != "":
		return fetchHTTPIndex(ctx, r.HTTPIndexURL, id)
	case r.Chain != nil:
		return r.resolveViaChain(ctx, id)
	default:
		return ModulePointer{}, toolerrs.Newf(toolerrs.Configuration, "chainindex.Resolve", "no local index, HTTP index, or chain RPC configured to resolve %q", uri)
	}
}

func parseChainURI(uri string) (string, error) {
	const prefix = "chain://"
	if !strings.HasPrefix(uri, prefix) {
		return "", toolerrs.Newf(toolerrs.Configuration, "chainindex.parseChainURI", "not a chain:// uri: %q", uri)
	}
	id := strings.TrimPrefix(uri, prefix)
	if id == "" {
		return "", toolerrs.Newf(toolerrs.Configuration, "chainindex.parseChainURI", "chain:// uri missing module id")
	}
	return id, nil
}

// resolveViaChain queries storage for the module's CID, fetches and parses
// ModuleMetadataV1 from IPFS, verifies it, and returns the resulting
// pointer. The pointer must never be cached or returned unverified.
func (r *Resolver) resolveViaChain(ctx context.Context, id string) (ModulePointer, error) {
	addr, err := modcrypto.Decode(id)
	if err != nil {
		return ModulePointer{}, err
	}

	cid, err := r.Chain.ModuleCID(ctx, addr.Pubkey)
	if err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Transport, "chainindex.resolveViaChain", err)
	}

	metaBytes, err := r.Fetcher.Fetch(ctx, "ipfs://"+cid)
	if err != nil {
		return ModulePointer{}, err
	}

	var meta ModuleMetadataV1
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Validation, "chainindex.resolveViaChain", err)
	}

	if err := verifyModuleMetadata(id, addr.Pubkey, meta); err != nil {
		return ModulePointer{}, err
	}

	return ModulePointer{
		ModuleID:  id,
		URI:       meta.ArtifactURI,
		Owner:     id,
		Digest:    meta.Digest,
		Signature: meta.Signature,
		Version:   meta.Version,
	}, nil
}

func verifyModuleMetadata(wantID string, owner [32]byte, meta ModuleMetadataV1) error {
	if meta.ModuleID != wantID {
		return toolerrs.Newf(toolerrs.Integrity, "chainindex.verifyModuleMetadata", "metadata module_id %q does not match requested %q", meta.ModuleID, wantID)
	}
	if meta.SignatureScheme != "sr25519" {
		return toolerrs.Newf(toolerrs.Integrity, "chainindex.verifyModuleMetadata", "unsupported signature scheme %q", meta.SignatureScheme)
	}

	digest, err := modcrypto.ParseDigest(meta.Digest)
	if err != nil {
		return err
	}
	sig, err := modcrypto.ParseSignature(meta.Signature)
	if err != nil {
		return err
	}
	return modcrypto.VerifySr25519(owner, digest, sig)
}
