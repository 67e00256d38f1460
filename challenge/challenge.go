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

// Package challenge derives, queues and schedules the storage proof
// challenges a provider must answer each round.
package challenge

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

// Challenge is one 32-byte trie traversal target. It does not have to
// match an existing forest leaf; when it does and RemoveMutation is set,
// the provider must prove the removal of that leaf.
type Challenge struct {
	Key            common.Hash `json:"key"`
	RemoveMutation bool        `json:"removeMutation"`
}

// DeriveKey computes the index-th random challenge for a provider from
// the per-block seed. It is a pure function so the scheduler and the
// verifier reconstruct identical challenge sets with no shared state.
func DeriveKey(seed, provider common.Hash, index uint64) common.Hash {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)

	h, _ := blake2b.New256(nil)
	h.Write(seed[:])
	h.Write(provider[:])
	h.Write(idx[:])
	return common.BytesToHash(h.Sum(nil))
}

// RandomRound derives the full random challenge quota for one round.
func RandomRound(seed, provider common.Hash, quota int) []Challenge {
	out := make([]Challenge, quota)
	for i := range out {
		out[i] = Challenge{Key: DeriveKey(seed, provider, uint64(i))}
	}
	return out
}

// PaddingPolicy selects how a short challenge list is filled up to the
// random quota.
type PaddingPolicy uint8

const (
	// PadRepeatLast repeats the last challenge in the list. This is the
	// historical behavior the benchmark fixtures depend on bit-for-bit.
	PadRepeatLast PaddingPolicy = iota

	// PadDerive fills the remaining slots with freshly derived keys.
	PadDerive
)

// Pad fills `chs` up to `quota` entries according to the policy. An
// empty input always falls back to derivation.
func Pad(chs []Challenge, quota int, policy PaddingPolicy, seed, provider common.Hash) []Challenge {
	if len(chs) >= quota {
		return chs
	}
	out := append([]Challenge(nil), chs...)
	for len(out) < quota {
		if policy == PadRepeatLast && len(out) > 0 {
			out = append(out, out[len(out)-1])
			continue
		}
		out = append(out, Challenge{Key: DeriveKey(seed, provider, uint64(len(out)))})
	}
	return out
}

// Dedupe canonicalizes a challenge list: the first occurrence of each
// key wins its position, and the remove flag is sticky across repeats.
// Repeated challenges are answered by a single proof entry, so the
// generator and the verifier must agree on this canonical form.
func Dedupe(chs []Challenge) []Challenge {
	out := make([]Challenge, 0, len(chs))
	pos := make(map[common.Hash]int, len(chs))
	for _, ch := range chs {
		if i, ok := pos[ch.Key]; ok {
			if ch.RemoveMutation {
				out[i].RemoveMutation = true
			}
			continue
		}
		pos[ch.Key] = len(out)
		out = append(out, ch)
	}
	return out
}
