// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

// Package api defines the JSON-RPC surface of a forest daemon.
package api

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	forest "github.com/storagehub/go-forest"
	"github.com/storagehub/go-forest/challenge"
	"github.com/storagehub/go-forest/provider"
)

// Version holds the daemon's build and API versions.
type Version struct {
	Version    string
	APIVersion uint32
}

// StorageHub is the RPC interface a forest daemon exposes to providers
// and operators. Proofs cross the wire as opaque serialized blobs; the
// caller relays them to the chain unchanged.
type StorageHub interface {
	Version(ctx context.Context) (Version, error)
	Session(ctx context.Context) (uuid.UUID, error)

	// forest management
	CreateForest(ctx context.Context, ref provider.ForestRef) error
	GetForestRoot(ctx context.Context, ref provider.ForestRef) (common.Hash, error)
	GetFileMetadata(ctx context.Context, ref provider.ForestRef, key common.Hash) (*forest.FileMetadata, error)
	InsertFile(ctx context.Context, ref provider.ForestRef, meta *forest.FileMetadata, data hexutil.Bytes) (common.Hash, error)
	RemoveFile(ctx context.Context, ref provider.ForestRef, key common.Hash) (common.Hash, error)

	// proof generation
	GenerateProof(ctx context.Context, ref provider.ForestRef, seed common.Hash, challenges []challenge.Challenge) (hexutil.Bytes, error)
	GenerateForestProof(ctx context.Context, ref provider.ForestRef, keys []common.Hash) (hexutil.Bytes, error)
	GenerateFileKeyProof(ctx context.Context, ref provider.ForestRef, key common.Hash, chall common.Hash, scope forest.ProofScope) (hexutil.Bytes, error)

	// challenge protocol
	QueueChallenge(ctx context.Context, ch challenge.Challenge) error
	QueuePriorityChallenge(ctx context.Context, ch challenge.Challenge) error
	SubmitProof(ctx context.Context, providerID common.Hash, root common.Hash, challengeBlock uint64, proof hexutil.Bytes) (common.Hash, error)
	ProofEvents(ctx context.Context) (<-chan provider.Event, error)
}
