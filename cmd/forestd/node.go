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

package main

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"

	forest "github.com/storagehub/go-forest"
	"github.com/storagehub/go-forest/api"
	"github.com/storagehub/go-forest/challenge"
	"github.com/storagehub/go-forest/provider"
)

const apiVersion = 1

// node wires the forest store, the challenge scheduler and the
// verifier behind the RPC interface.
type node struct {
	store    *provider.ForestStore
	sched    *challenge.Scheduler
	verifier *provider.Verifier
	events   *provider.EventFeed
	session  uuid.UUID
}

var _ api.StorageHub = (*node)(nil)

func newNode(ctx context.Context, ds datastore.Batching, cfg challenge.Config) (*node, error) {
	sched, err := challenge.NewScheduler(ctx, cfg, ds)
	if err != nil {
		return nil, err
	}
	events := provider.NewEventFeed()
	return &node{
		store:    provider.NewForestStore(ds),
		sched:    sched,
		verifier: provider.NewVerifier(sched, events),
		events:   events,
		session:  uuid.New(),
	}, nil
}

func (n *node) Version(ctx context.Context) (api.Version, error) {
	return api.Version{Version: buildVersion, APIVersion: apiVersion}, nil
}

func (n *node) Session(ctx context.Context) (uuid.UUID, error) {
	return n.session, nil
}

func (n *node) CreateForest(ctx context.Context, ref provider.ForestRef) error {
	if err := n.store.CreateForest(ctx, ref); err != nil {
		return err
	}
	if ref.Bucket == nil {
		n.verifier.RegisterProvider(ref.Provider, forest.EmptyRoot())
	}
	return nil
}

func (n *node) GetForestRoot(ctx context.Context, ref provider.ForestRef) (common.Hash, error) {
	return n.store.Root(ctx, ref)
}

func (n *node) GetFileMetadata(ctx context.Context, ref provider.ForestRef, key common.Hash) (*forest.FileMetadata, error) {
	return n.store.GetFileMetadata(ctx, ref, key)
}

func (n *node) InsertFile(ctx context.Context, ref provider.ForestRef, meta *forest.FileMetadata, data hexutil.Bytes) (common.Hash, error) {
	return n.store.InsertFile(ctx, ref, meta, data)
}

func (n *node) RemoveFile(ctx context.Context, ref provider.ForestRef, key common.Hash) (common.Hash, error) {
	return n.store.RemoveFile(ctx, ref, key)
}

func (n *node) GenerateProof(ctx context.Context, ref provider.ForestRef, seed common.Hash, challenges []challenge.Challenge) (hexutil.Bytes, error) {
	log.Debugw("generate proof", "ref", ref.String(), "seed", seed, "challenges", len(challenges))
	proof, err := n.store.GenerateProof(ctx, ref, challenges)
	if err != nil {
		return nil, err
	}
	return proof.Serialize()
}

func (n *node) GenerateForestProof(ctx context.Context, ref provider.ForestRef, keys []common.Hash) (hexutil.Bytes, error) {
	proof, err := n.store.GenerateForestProof(ctx, ref, keys)
	if err != nil {
		return nil, err
	}
	return proof.Serialize()
}

func (n *node) GenerateFileKeyProof(ctx context.Context, ref provider.ForestRef, key common.Hash, chall common.Hash, scope forest.ProofScope) (hexutil.Bytes, error) {
	proof, err := n.store.GenerateFileKeyProof(ctx, ref, key, chall, scope)
	if err != nil {
		return nil, err
	}
	return proof.Serialize()
}

func (n *node) QueueChallenge(ctx context.Context, ch challenge.Challenge) error {
	return n.sched.QueueChallenge(ctx, ch)
}

func (n *node) QueuePriorityChallenge(ctx context.Context, ch challenge.Challenge) error {
	return n.sched.QueuePriorityChallenge(ctx, ch)
}

func (n *node) SubmitProof(ctx context.Context, providerID common.Hash, root common.Hash, challengeBlock uint64, blob hexutil.Bytes) (common.Hash, error) {
	proof, err := provider.DeserializeProof(blob)
	if err != nil {
		return common.Hash{}, err
	}
	return n.verifier.VerifyAndApply(ctx, providerID, root, challengeBlock, proof)
}

func (n *node) ProofEvents(ctx context.Context) (<-chan provider.Event, error) {
	sub, cancel := n.events.Subscribe(16)
	out := make(chan provider.Event, 16)
	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
