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

// Package fixtures generates the deterministic worst-case proof
// fixtures consumed by the pallet benchmark suite. It populates a
// forest through the RPC surface, assembles per-count challenge sets
// and records one serialized proof per count.
package fixtures

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	forest "github.com/storagehub/go-forest"
	"github.com/storagehub/go-forest/api"
	"github.com/storagehub/go-forest/challenge"
	"github.com/storagehub/go-forest/provider"
)

var log = logging.Logger("fixtures")

// Params configures a fixture generation run.
type Params struct {
	Seed     common.Hash
	Provider common.Hash
	BucketID common.Hash

	// Leaves is the worst-case forest size; one proof fixture is
	// generated for every challenge count from 1 to Leaves.
	Leaves int

	// Workers bounds concurrent proof generation.
	Workers int

	// Debug dumps every generated fixture entry.
	Debug bool
}

// DefaultParams mirrors the worst-case run the pallet benchmarks use.
func DefaultParams() Params {
	return Params{
		Seed:     common.Hash(blake2b.Sum256([]byte("benchmark-seed"))),
		Provider: common.Hash(blake2b.Sum256([]byte("benchmark-provider"))),
		BucketID: common.Hash(blake2b.Sum256([]byte("benchmark-bucket"))),
		Leaves:   40,
		Workers:  8,
	}
}

// Fixture is the shape the pallet benchmark suite consumes: the seed,
// the provider, the committed root, one challenge set and one proof
// blob per challenge count, plus a standalone inclusion proof with the
// metadata of the file it opens.
type Fixture struct {
	Seed     common.Hash
	Provider common.Hash
	Root     common.Hash

	FileKeys []common.Hash

	// indexed by challenge count minus one
	ChallengeSets [][]challenge.Challenge
	Proofs        []hexutil.Bytes

	InclusionProof hexutil.Bytes
	Metadata       forest.FileMetadata
}

// DecrementHash returns the key immediately below h in big-endian
// order. Challenging a decremented key probes the trie right next to a
// real leaf without hitting it.
func DecrementHash(h common.Hash) common.Hash {
	out := h
	for i := len(out) - 1; i >= 0; i-- {
		out[i]--
		if out[i] != 0xff {
			break
		}
	}
	return out
}

// fileBody derives the deterministic content of the i-th benchmark
// file: a blake2b keystream long enough to span several chunks, with
// the length varied so chunk counts differ across files.
func fileBody(i int) []byte {
	size := 3*forest.ChunkSize + i*17
	body := make([]byte, 0, size)
	block := blake2b.Sum256([]byte(fmt.Sprintf("benchmark-file-%d", i)))
	for len(body) < size {
		body = append(body, block[:]...)
		block = blake2b.Sum256(block[:])
	}
	return body[:size]
}

// fileMetadata builds the metadata of the i-th benchmark file.
func fileMetadata(i int, bucket common.Hash, body []byte) *forest.FileMetadata {
	owner := blake2b.Sum256([]byte(fmt.Sprintf("benchmark-owner-%d", i/4)))
	return &forest.FileMetadata{
		Owner:       owner[:20],
		BucketID:    bucket,
		Location:    []byte(fmt.Sprintf("/benchmark/file-%d", i)),
		Fingerprint: forest.Fingerprint(body),
		FileSize:    uint64(len(body)),
	}
}

// ChallengesForCount builds the challenge set for one fixture entry:
// the first count file keys, with every odd index decremented so the
// set exercises both inclusion and non-inclusion, padded to the random
// quota by repeating the last challenge, then the removal challenges
// the round budget still admits, taken from the tail of the sorted key
// list.
func ChallengesForCount(keys []common.Hash, count int) []challenge.Challenge {
	chs := make([]challenge.Challenge, 0, count)
	hits := 0
	for idx := 0; idx < count; idx++ {
		key := keys[idx]
		if idx%2 == 1 {
			key = DecrementHash(key)
		} else {
			hits++
		}
		chs = append(chs, challenge.Challenge{Key: key})
	}
	chs = challenge.Pad(chs, challenge.DefaultConfig().RandomChallengesPerRound,
		challenge.PadRepeatLast, common.Hash{}, common.Hash{})

	removals := provider.RemoveMutationChallengesToAdd(hits)
	for r := 0; r < removals && r < len(keys); r++ {
		chs = append(chs, challenge.Challenge{
			Key:            keys[len(keys)-1-r],
			RemoveMutation: true,
		})
	}
	return chs
}

// Generate populates the worst-case forest through the client and
// builds the full fixture. Proof generation for the individual counts
// runs in parallel; results land at their count index, so the output
// is deterministic regardless of scheduling.
func Generate(ctx context.Context, client api.StorageHub, p Params) (*Fixture, error) {
	ref := provider.ForestRef{Provider: p.Provider, Bucket: &p.BucketID}
	if err := client.CreateForest(ctx, ref); err != nil {
		return nil, xerrors.Errorf("creating benchmark forest: %w", err)
	}

	keys := make([]common.Hash, p.Leaves)
	var firstMeta *forest.FileMetadata
	for i := 0; i < p.Leaves; i++ {
		body := fileBody(i)
		meta := fileMetadata(i, p.BucketID, body)
		key, err := meta.FileKey()
		if err != nil {
			return nil, err
		}
		if _, err := client.InsertFile(ctx, ref, meta, body); err != nil {
			return nil, xerrors.Errorf("inserting benchmark file %d: %w", i, err)
		}
		keys[i] = key
		if i == 0 {
			firstMeta = meta
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	root, err := client.GetForestRoot(ctx, ref)
	if err != nil {
		return nil, err
	}

	fx := &Fixture{
		Seed:          p.Seed,
		Provider:      p.Provider,
		Root:          root,
		FileKeys:      keys,
		ChallengeSets: make([][]challenge.Challenge, p.Leaves),
		Proofs:        make([]hexutil.Bytes, p.Leaves),
		Metadata:      *firstMeta,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.Workers)
	for count := 1; count <= p.Leaves; count++ {
		count := count
		eg.Go(func() error {
			chs := ChallengesForCount(keys, count)
			blob, err := client.GenerateProof(gctx, ref, p.Seed, chs)
			if err != nil {
				return xerrors.Errorf("generating proof for count %d: %w", count, err)
			}
			fx.ChallengeSets[count-1] = chs
			fx.Proofs[count-1] = blob
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	inclusionKey, err := firstMeta.FileKey()
	if err != nil {
		return nil, err
	}
	chunkChallenge := common.Hash(blake2b.Sum256(append(p.Seed[:], inclusionKey[:]...)))
	inclusion, err := client.GenerateFileKeyProof(ctx, ref, inclusionKey, chunkChallenge, forest.ScopeChallenge)
	if err != nil {
		return nil, xerrors.Errorf("generating inclusion proof: %w", err)
	}
	fx.InclusionProof = inclusion

	if p.Debug {
		log.Debugf("fixture dump:\n%s", spew.Sdump(fx))
	}
	log.Infow("generated benchmark fixture", "leaves", p.Leaves, "root", root)
	return fx, nil
}
