// Package chainindex resolves chain://<module-id> URIs to verified
// ModulePointer values, either from a local index file, an HTTP index
// service, or a Substrate chain RPC storage query.
package chainindex

import (
	"encoding/json"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// ModulePointer is a verified artifact locator.
type ModulePointer struct {
	ModuleID  string `json:"module_id"`
	URI       string `json:"uri"`
	Owner     string `json:"owner,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Signature string `json:"signature,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ModuleMetadataV1 is the signed JSON sidecar fetched from IPFS when a
// pointer is resolved via chain RPC.
type ModuleMetadataV1 struct {
	ModuleID        string `json:"module_id"`
	ArtifactURI     string `json:"artifact_uri"`
	Digest          string `json:"digest"`
	Signature       string `json:"signature"`
	SignatureScheme string `json:"signature_scheme"`
	Version         string `json:"version,omitempty"`
}

const defaultSignatureScheme = "sr25519"

// UnmarshalJSON defaults SignatureScheme to "sr25519" when absent, matching
// the on-disk format's documented default.
func (m *ModuleMetadataV1) UnmarshalJSON(data []byte) error {
	type alias ModuleMetadataV1
	aux := (*alias)(m)
	if err := json.Unmarshal(data, aux); err != nil {
		return toolerrs.New(toolerrs.Validation, "chainindex.ModuleMetadataV1.UnmarshalJSON", err)
	}
	if aux.SignatureScheme == "" {
		aux.SignatureScheme = defaultSignatureScheme
	}
	return nil
}
