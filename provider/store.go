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

// Package provider implements the provider-side forest store, proof
// generation, and the chain-side verification of submitted proofs.
package provider

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	forest "github.com/storagehub/go-forest"
)

var log = logging.Logger("provider")

var (
	// ErrProviderNotFound is returned for forests that were never
	// created in this store.
	ErrProviderNotFound = errors.New("provider forest not found")

	// ErrForestExists is returned when creating a forest that already
	// exists.
	ErrForestExists = errors.New("provider forest already exists")

	// ErrForestUnavailable is returned when the local trie is missing
	// or corrupted; recovery requires a resync from chain state.
	ErrForestUnavailable = errors.New("provider forest unavailable")
)

// ForestRef addresses one forest: a BSP's capacity-wide forest when
// Bucket is nil, or one of an MSP's bucket forests otherwise.
type ForestRef struct {
	Provider common.Hash  `json:"provider"`
	Bucket   *common.Hash `json:"bucket,omitempty"`
}

func (r ForestRef) String() string {
	if r.Bucket == nil {
		return r.Provider.Hex()
	}
	return r.Provider.Hex() + "/" + r.Bucket.Hex()
}

type forestHandle struct {
	// single-writer discipline per forest: mutations take the write
	// lock; proof generation and reads share the read lock. Every
	// mutation re-commits the trie before unlocking, so readers only
	// ever see cached digests.
	mu   sync.RWMutex
	root forest.ForestNode
}

// ForestStore maintains one Merkle-Patricia forest per provider (or per
// bucket), persisted node-by-node in a datastore. Mutations are atomic:
// the trie nodes, the file payload and the root pointer commit in one
// batch before the call returns.
type ForestStore struct {
	roots datastore.Batching // root pointers, keyed by forest ref
	nodes datastore.Batching // trie nodes, keyed by digest
	files datastore.Batching // file payloads, keyed by file key

	mu      sync.Mutex
	forests map[string]*forestHandle
}

// NewForestStore opens a forest store on the given datastore.
func NewForestStore(ds datastore.Batching) *ForestStore {
	return &ForestStore{
		roots:   namespace.Wrap(ds, datastore.NewKey("/forest/roots")),
		nodes:   namespace.Wrap(ds, datastore.NewKey("/forest/nodes")),
		files:   namespace.Wrap(ds, datastore.NewKey("/forest/files")),
		forests: make(map[string]*forestHandle),
	}
}

func rootKey(ref ForestRef) datastore.Key {
	return datastore.NewKey("/" + ref.String())
}

func nodeKey(h common.Hash) datastore.Key {
	return datastore.NewKey("/" + h.Hex())
}

func fileKey(k common.Hash) datastore.Key {
	return datastore.NewKey("/" + k.Hex())
}

// CreateForest initializes an empty forest for a newly signed-up
// provider (or a newly hosted bucket).
func (s *ForestStore) CreateForest(ctx context.Context, ref ForestRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forests[ref.String()]; ok {
		return ErrForestExists
	}
	if _, err := s.roots.Get(ctx, rootKey(ref)); err == nil {
		return ErrForestExists
	}

	root := forest.New()
	if err := s.persist(ctx, ref, root, nil, nil, false); err != nil {
		return err
	}
	s.forests[ref.String()] = &forestHandle{root: root}
	log.Infow("created forest", "ref", ref.String(), "root", root.Commit())
	return nil
}

// handle returns the in-memory handle for a forest, loading it from the
// datastore on first access.
func (s *ForestStore) handle(ctx context.Context, ref ForestRef) (*forestHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.forests[ref.String()]; ok {
		return h, nil
	}

	raw, err := s.roots.Get(ctx, rootKey(ref))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, xerrors.Errorf("loading forest root %s: %w", ref, err)
	}
	if len(raw) != 32 {
		return nil, xerrors.Errorf("forest %s: corrupted root pointer: %w", ref, ErrForestUnavailable)
	}

	rootHash := common.BytesToHash(raw)
	root, err := forest.Expand(forest.NewHashedRoot(rootHash), 0, func(h common.Hash) ([]byte, error) {
		data, err := s.nodes.Get(ctx, nodeKey(h))
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, xerrors.Errorf("missing node %s: %w", h, ErrForestUnavailable)
		}
		return data, err
	})
	if err != nil {
		log.Errorw("failed to load forest", "ref", ref.String(), "error", err)
		return nil, xerrors.Errorf("loading forest %s: %w", ref, ErrForestUnavailable)
	}
	if root.Commit() != rootHash {
		return nil, xerrors.Errorf("forest %s: root digest mismatch: %w", ref, ErrForestUnavailable)
	}

	h := &forestHandle{root: root}
	s.forests[ref.String()] = h
	return h, nil
}

// persist writes the current trie nodes, an optional file payload and
// the root pointer in one batch. Durability before acknowledgement is
// what keeps the local store in sync with the on-chain root.
func (s *ForestStore) persist(ctx context.Context, ref ForestRef, root forest.ForestNode, file *common.Hash, data []byte, drop bool) error {
	batch, err := s.nodes.Batch(ctx)
	if err != nil {
		return err
	}
	err = forest.WalkNodes(root, func(h common.Hash, serialized []byte) error {
		return batch.Put(ctx, nodeKey(h), serialized)
	})
	if err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return xerrors.Errorf("persisting forest nodes: %w", err)
	}

	if file != nil {
		if drop {
			if err := s.files.Delete(ctx, fileKey(*file)); err != nil {
				return err
			}
		} else if err := s.files.Put(ctx, fileKey(*file), data); err != nil {
			return err
		}
	}

	rootHash := root.Commit()
	return s.roots.Put(ctx, rootKey(ref), rootHash[:])
}

// InsertFile commits a new file to a forest and returns the new root.
// The content must match the fingerprint in the metadata.
func (s *ForestStore) InsertFile(ctx context.Context, ref ForestRef, meta *forest.FileMetadata, data []byte) (common.Hash, error) {
	if uint64(len(data)) != meta.FileSize || forest.Fingerprint(data) != meta.Fingerprint {
		return common.Hash{}, forest.ErrFingerprintMismatch
	}
	key, err := meta.FileKey()
	if err != nil {
		return common.Hash{}, err
	}
	value, err := meta.Encode()
	if err != nil {
		return common.Hash{}, err
	}

	h, err := s.handle(ctx, ref)
	if err != nil {
		return common.Hash{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.root.Insert(key[:], value); err != nil {
		return common.Hash{}, err
	}
	h.root.Commit()
	if err := s.persist(ctx, ref, h.root, &key, data, false); err != nil {
		return common.Hash{}, err
	}
	return h.root.Commit(), nil
}

// RemoveFile removes a committed file and returns the new root.
func (s *ForestStore) RemoveFile(ctx context.Context, ref ForestRef, key common.Hash) (common.Hash, error) {
	h, err := s.handle(ctx, ref)
	if err != nil {
		return common.Hash{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.root.Delete(key[:]); err != nil {
		return common.Hash{}, err
	}
	h.root.Commit()
	if err := s.persist(ctx, ref, h.root, &key, nil, true); err != nil {
		return common.Hash{}, err
	}
	return h.root.Commit(), nil
}

// Root returns the current root of a forest.
func (s *ForestStore) Root(ctx context.Context, ref ForestRef) (common.Hash, error) {
	h, err := s.handle(ctx, ref)
	if err != nil {
		return common.Hash{}, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.root.Commit(), nil
}

// GetFileMetadata returns the metadata committed under a file key, or
// nil when the key is not in the forest.
func (s *ForestStore) GetFileMetadata(ctx context.Context, ref ForestRef, key common.Hash) (*forest.FileMetadata, error) {
	h, err := s.handle(ctx, ref)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	value, err := h.root.Get(key[:])
	if errors.Is(err, forest.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return forest.DecodeFileMetadata(value)
}

// GenerateForestProof produces one multiproof answering inclusion or
// non-inclusion for all given file keys against the forest's current
// root.
func (s *ForestStore) GenerateForestProof(ctx context.Context, ref ForestRef, keys []common.Hash) (*forest.ForestProof, error) {
	h, err := s.handle(ctx, ref)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	raw := make([][]byte, len(keys))
	for i := range keys {
		raw[i] = keys[i][:]
	}
	return forest.MakeForestProof(h.root, raw)
}

func (s *ForestStore) fileData(ctx context.Context, key common.Hash) ([]byte, error) {
	data, err := s.files.Get(ctx, fileKey(key))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, xerrors.Errorf("missing payload for file %s: %w", key, ErrForestUnavailable)
	}
	return data, err
}
