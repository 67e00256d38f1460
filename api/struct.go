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

// StorageHubStruct is the proxy the RPC client fills in; each exported
// method forwards to the corresponding Internal function pointer.
type StorageHubStruct struct {
	Internal struct {
		Version func(context.Context) (Version, error)
		Session func(context.Context) (uuid.UUID, error)

		CreateForest    func(context.Context, provider.ForestRef) error
		GetForestRoot   func(context.Context, provider.ForestRef) (common.Hash, error)
		GetFileMetadata func(context.Context, provider.ForestRef, common.Hash) (*forest.FileMetadata, error)
		InsertFile      func(context.Context, provider.ForestRef, *forest.FileMetadata, hexutil.Bytes) (common.Hash, error)
		RemoveFile      func(context.Context, provider.ForestRef, common.Hash) (common.Hash, error)

		GenerateProof        func(context.Context, provider.ForestRef, common.Hash, []challenge.Challenge) (hexutil.Bytes, error)
		GenerateForestProof  func(context.Context, provider.ForestRef, []common.Hash) (hexutil.Bytes, error)
		GenerateFileKeyProof func(context.Context, provider.ForestRef, common.Hash, common.Hash, forest.ProofScope) (hexutil.Bytes, error)

		QueueChallenge         func(context.Context, challenge.Challenge) error
		QueuePriorityChallenge func(context.Context, challenge.Challenge) error
		SubmitProof            func(context.Context, common.Hash, common.Hash, uint64, hexutil.Bytes) (common.Hash, error)
		ProofEvents            func(context.Context) (<-chan provider.Event, error)
	}
}

func (s *StorageHubStruct) Version(ctx context.Context) (Version, error) {
	return s.Internal.Version(ctx)
}

func (s *StorageHubStruct) Session(ctx context.Context) (uuid.UUID, error) {
	return s.Internal.Session(ctx)
}

func (s *StorageHubStruct) CreateForest(ctx context.Context, ref provider.ForestRef) error {
	return s.Internal.CreateForest(ctx, ref)
}

func (s *StorageHubStruct) GetForestRoot(ctx context.Context, ref provider.ForestRef) (common.Hash, error) {
	return s.Internal.GetForestRoot(ctx, ref)
}

func (s *StorageHubStruct) GetFileMetadata(ctx context.Context, ref provider.ForestRef, key common.Hash) (*forest.FileMetadata, error) {
	return s.Internal.GetFileMetadata(ctx, ref, key)
}

func (s *StorageHubStruct) InsertFile(ctx context.Context, ref provider.ForestRef, meta *forest.FileMetadata, data hexutil.Bytes) (common.Hash, error) {
	return s.Internal.InsertFile(ctx, ref, meta, data)
}

func (s *StorageHubStruct) RemoveFile(ctx context.Context, ref provider.ForestRef, key common.Hash) (common.Hash, error) {
	return s.Internal.RemoveFile(ctx, ref, key)
}

func (s *StorageHubStruct) GenerateProof(ctx context.Context, ref provider.ForestRef, seed common.Hash, challenges []challenge.Challenge) (hexutil.Bytes, error) {
	return s.Internal.GenerateProof(ctx, ref, seed, challenges)
}

func (s *StorageHubStruct) GenerateForestProof(ctx context.Context, ref provider.ForestRef, keys []common.Hash) (hexutil.Bytes, error) {
	return s.Internal.GenerateForestProof(ctx, ref, keys)
}

func (s *StorageHubStruct) GenerateFileKeyProof(ctx context.Context, ref provider.ForestRef, key common.Hash, chall common.Hash, scope forest.ProofScope) (hexutil.Bytes, error) {
	return s.Internal.GenerateFileKeyProof(ctx, ref, key, chall, scope)
}

func (s *StorageHubStruct) QueueChallenge(ctx context.Context, ch challenge.Challenge) error {
	return s.Internal.QueueChallenge(ctx, ch)
}

func (s *StorageHubStruct) QueuePriorityChallenge(ctx context.Context, ch challenge.Challenge) error {
	return s.Internal.QueuePriorityChallenge(ctx, ch)
}

func (s *StorageHubStruct) SubmitProof(ctx context.Context, providerID common.Hash, root common.Hash, challengeBlock uint64, proof hexutil.Bytes) (common.Hash, error) {
	return s.Internal.SubmitProof(ctx, providerID, root, challengeBlock, proof)
}

func (s *StorageHubStruct) ProofEvents(ctx context.Context) (<-chan provider.Event, error) {
	return s.Internal.ProofEvents(ctx)
}

var _ StorageHub = new(StorageHubStruct)
