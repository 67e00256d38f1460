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
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	forest "github.com/storagehub/go-forest"
	"github.com/storagehub/go-forest/challenge"
)

var (
	// ErrStaleRoot is returned when a proof was generated against a
	// root other than the provider's committed one.
	ErrStaleRoot = errors.New("proof root does not match committed forest root")

	// ErrProofMismatch is returned when the submitted proof does not
	// substantiate the expected challenge set.
	ErrProofMismatch = errors.New("proof does not answer the challenge set")
)

// Verifier replays proof verification the way the chain runtime does:
// it reconstructs the expected challenge set from the scheduler's
// records, checks the submitted proof against the provider's committed
// root, and on success applies proven removals to produce the new
// committed root. A rejected proof leaves the round open; the provider
// stays exposed to the liveness timeout until it submits a valid one.
type Verifier struct {
	sched  *challenge.Scheduler
	events *EventFeed

	mu    sync.Mutex
	roots map[common.Hash]common.Hash
}

// NewVerifier creates a verifier over the scheduler's round records.
func NewVerifier(sched *challenge.Scheduler, events *EventFeed) *Verifier {
	return &Verifier{
		sched:  sched,
		events: events,
		roots:  make(map[common.Hash]common.Hash),
	}
}

// RegisterProvider records a provider's initial committed forest root.
func (v *Verifier) RegisterProvider(id common.Hash, root common.Hash) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.roots[id] = root
}

// CommittedRoot returns the provider's current committed forest root.
func (v *Verifier) CommittedRoot(id common.Hash) (common.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	root, ok := v.roots[id]
	if !ok {
		return common.Hash{}, challenge.ErrUnknownProvider
	}
	return root, nil
}

// UpdateRoot records a root change made outside of proof verification,
// such as a confirmed storage request or a deletion the provider
// executed on request.
func (v *Verifier) UpdateRoot(id common.Hash, root common.Hash) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.roots[id]; !ok {
		return challenge.ErrUnknownProvider
	}
	v.roots[id] = root
	return nil
}

// VerifyAndApply checks a provider's proof for the round issued at
// challengeBlock and, if every challenge is answered correctly, applies
// the proven removals and returns the provider's new committed root.
func (v *Verifier) VerifyAndApply(ctx context.Context, id common.Hash, submittedRoot common.Hash, challengeBlock uint64, proof *Proof) (common.Hash, error) {
	newRoot, err := v.verify(ctx, id, submittedRoot, challengeBlock, proof)
	if err != nil {
		log.Warnw("rejected proof", "provider", id, "block", challengeBlock, "error", err)
		v.events.Publish(Event{
			Type:     EventProofRejected,
			Provider: id,
			Block:    challengeBlock,
			Reason:   err.Error(),
		})
		return common.Hash{}, err
	}

	v.mu.Lock()
	v.roots[id] = newRoot
	v.mu.Unlock()

	if err := v.sched.MarkProofSubmitted(ctx, id, challengeBlock); err != nil {
		return common.Hash{}, err
	}

	v.events.Publish(Event{
		Type:     EventProofAccepted,
		Provider: id,
		Block:    challengeBlock,
		NewRoot:  newRoot,
	})
	log.Infow("accepted proof", "provider", id, "block", challengeBlock, "newRoot", newRoot)
	return newRoot, nil
}

func (v *Verifier) verify(ctx context.Context, id common.Hash, submittedRoot common.Hash, challengeBlock uint64, proof *Proof) (common.Hash, error) {
	if proof == nil || proof.ForestProof == nil {
		return common.Hash{}, ErrProofMismatch
	}

	committed, err := v.CommittedRoot(id)
	if err != nil {
		return common.Hash{}, err
	}
	if submittedRoot != committed {
		return common.Hash{}, ErrStaleRoot
	}

	round, err := v.sched.RoundFor(ctx, id, challengeBlock)
	if err != nil {
		return common.Hash{}, err
	}

	canonical := challenge.Dedupe(round.Challenges)
	keys := make([][]byte, len(canonical))
	for i, ch := range canonical {
		keys[i] = ch.Key.Bytes()
	}

	values, err := forest.VerifyForestProof(proof.ForestProof, committed, keys)
	if err != nil {
		return common.Hash{}, err
	}

	// file key proofs and proven removals share one budget; reject
	// oversized rounds before the expensive pairing work
	hits := 0
	for _, ch := range canonical {
		if values[ch.Key] != nil {
			hits++
		}
	}
	if hits > MaxProofsPerRound {
		return common.Hash{}, ErrRoundBudgetExceeded
	}

	var (
		removalKeys [][]byte
		nextKP      int
	)
	for _, ch := range canonical {
		value, hit := values[ch.Key]
		if !hit || value == nil {
			// a proven miss answers the challenge by itself
			continue
		}

		if ch.RemoveMutation {
			removalKeys = append(removalKeys, ch.Key.Bytes())
			continue
		}

		if nextKP >= len(proof.FileKeyProofs) {
			return common.Hash{}, xerrors.Errorf("missing file key proof for %s: %w", ch.Key, ErrProofMismatch)
		}
		kp := proof.FileKeyProofs[nextKP]
		nextKP++

		if kp.FileKey != ch.Key {
			return common.Hash{}, xerrors.Errorf("file key proof out of order at %s: %w", ch.Key, ErrProofMismatch)
		}
		enc, err := kp.Metadata.Encode()
		if err != nil {
			return common.Hash{}, err
		}
		if !bytes.Equal(enc, value) {
			return common.Hash{}, xerrors.Errorf("file key proof metadata diverges from forest leaf %s: %w", ch.Key, ErrProofMismatch)
		}
		if err := kp.Verify(ch.Key, forest.ScopeChallenge); err != nil {
			return common.Hash{}, err
		}
	}
	if nextKP != len(proof.FileKeyProofs) {
		return common.Hash{}, xerrors.Errorf("%d extraneous file key proofs: %w", len(proof.FileKeyProofs)-nextKP, ErrProofMismatch)
	}

	if len(removalKeys) == 0 {
		return committed, nil
	}

	partial, err := forest.TreeFromProof(proof.ForestProof)
	if err != nil {
		return common.Hash{}, err
	}
	return forest.ApplyRemovals(partial, removalKeys)
}
