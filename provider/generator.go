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

package provider

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/xerrors"

	forest "github.com/storagehub/go-forest"
	"github.com/storagehub/go-forest/challenge"
)

// MaxProofsPerRound caps the combined number of file key proofs and
// proven removals in one round.
const MaxProofsPerRound = 20

// ErrRoundBudgetExceeded is returned when a challenge set would require
// more substantiation than the per-round budget allows.
var ErrRoundBudgetExceeded = errors.New("challenge set exceeds per-round proof budget")

// RemoveMutationChallengesToAdd returns how many removal challenges fit
// in a round that already substantiates n file key proofs: half the
// budget when content proofs fit in the other half, the linearly
// shrinking remainder after that.
func RemoveMutationChallengesToAdd(n int) int {
	if n <= MaxProofsPerRound/2 {
		return MaxProofsPerRound / 2
	}
	if n <= MaxProofsPerRound {
		return MaxProofsPerRound - n
	}
	return 0
}

// Proof is a provider's full response to one challenge round: one
// forest multiproof plus one file key proof per challenged leaf that
// needs content substantiation. Exact-match removal challenges are
// proved solely by the forest proof.
type Proof struct {
	ForestProof   *forest.ForestProof
	FileKeyProofs []*forest.FileKeyProof
}

// Serialize encodes the proof into the opaque blob submitted on chain.
func (p *Proof) Serialize() ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

// DeserializeProof decodes a submitted proof blob.
func DeserializeProof(blob []byte) (*Proof, error) {
	proof := new(Proof)
	if err := rlp.DecodeBytes(blob, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// GenerateProof answers a challenge round against a provider's forest:
// one multiproof covering every challenge key, plus a file key proof
// for every hit that is not an exact-match removal. When a proven
// removal would collapse a branch, the surviving sibling leaf is opened
// in the multiproof so the verifier can recompute the post-removal
// root.
func (s *ForestStore) GenerateProof(ctx context.Context, ref ForestRef, challenges []challenge.Challenge) (*Proof, error) {
	if len(challenges) == 0 {
		return nil, xerrors.Errorf("empty challenge set")
	}

	h, err := s.handle(ctx, ref)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	canonical := challenge.Dedupe(challenges)

	var (
		proofKeys [][]byte
		hits      []challenge.Challenge
		removals  int
	)
	for _, ch := range canonical {
		key := ch.Key
		proofKeys = append(proofKeys, key[:])

		_, err := h.root.Get(key[:])
		if errors.Is(err, forest.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if ch.RemoveMutation {
			removals++
			if witness, ok := forest.MergeWitness(h.root, key[:]); ok {
				proofKeys = append(proofKeys, witness)
			}
			continue
		}
		hits = append(hits, ch)
	}

	if len(hits)+removals > MaxProofsPerRound {
		return nil, ErrRoundBudgetExceeded
	}

	forestProof, err := forest.MakeForestProof(h.root, proofKeys)
	if err != nil {
		return nil, err
	}

	keyProofs := make([]*forest.FileKeyProof, 0, len(hits))
	for _, ch := range hits {
		value, err := h.root.Get(ch.Key[:])
		if err != nil {
			return nil, err
		}
		meta, err := forest.DecodeFileMetadata(value)
		if err != nil {
			return nil, xerrors.Errorf("decoding leaf metadata for %s: %w", ch.Key, ErrForestUnavailable)
		}
		data, err := s.fileData(ctx, ch.Key)
		if err != nil {
			return nil, err
		}
		kp, err := forest.GenerateFileKeyProof(meta, data, ch.Key, forest.ScopeChallenge)
		if err != nil {
			return nil, err
		}
		keyProofs = append(keyProofs, kp)
	}

	log.Debugw("generated proof", "ref", ref.String(),
		"challenges", len(canonical), "fileKeyProofs", len(keyProofs), "removals", removals)

	return &Proof{ForestProof: forestProof, FileKeyProofs: keyProofs}, nil
}

// GenerateFileKeyProof builds a standalone chunk inclusion proof for a
// committed file, framed for the given scope. Storage request
// confirmations use ScopeBspConfirm and ScopeMspAccept; liveness rounds
// go through GenerateProof instead.
func (s *ForestStore) GenerateFileKeyProof(ctx context.Context, ref ForestRef, key, chall common.Hash, scope forest.ProofScope) (*forest.FileKeyProof, error) {
	h, err := s.handle(ctx, ref)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	value, err := h.root.Get(key[:])
	if err != nil {
		return nil, err
	}
	meta, err := forest.DecodeFileMetadata(value)
	if err != nil {
		return nil, xerrors.Errorf("decoding leaf metadata for %s: %w", key, ErrForestUnavailable)
	}
	data, err := s.fileData(ctx, key)
	if err != nil {
		return nil, err
	}
	return forest.GenerateFileKeyProof(meta, data, chall, scope)
}
