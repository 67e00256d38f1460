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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	forest "github.com/storagehub/go-forest"
	"github.com/storagehub/go-forest/challenge"
)

func populateForest(t *testing.T, s *ForestStore, ref ForestRef, n int) []common.Hash {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateForest(ctx, ref))

	keys := make([]common.Hash, n)
	for i := 0; i < n; i++ {
		meta, data := testFile(t, i)
		key, err := meta.FileKey()
		require.NoError(t, err)
		_, err = s.InsertFile(ctx, ref, meta, data)
		require.NoError(t, err)
		keys[i] = key
	}
	return keys
}

func TestRemoveMutationChallengesToAdd(t *testing.T) {
	cases := map[int]int{
		0:  10,
		5:  10,
		10: 10,
		11: 9,
		15: 5,
		20: 0,
		21: 0,
		40: 0,
	}
	for n, want := range cases {
		require.Equal(t, want, RemoveMutationChallengesToAdd(n), "n=%d", n)
	}
}

func TestGenerateProofInclusion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ref := testRef(0)
	keys := populateForest(t, s, ref, 12)

	chs := []challenge.Challenge{
		{Key: keys[0]},
		{Key: keys[1]},
		{Key: common.Hash(blake2b.Sum256([]byte("miss")))},
	}
	proof, err := s.GenerateProof(ctx, ref, chs)
	require.NoError(t, err)

	// one file key proof per hit, none for the miss
	require.Len(t, proof.FileKeyProofs, 2)
	require.Equal(t, keys[0], proof.FileKeyProofs[0].FileKey)
	require.Equal(t, keys[1], proof.FileKeyProofs[1].FileKey)

	root, err := s.Root(ctx, ref)
	require.NoError(t, err)
	values, err := forest.VerifyForestProof(proof.ForestProof, root,
		[][]byte{keys[0].Bytes(), keys[1].Bytes(), chs[2].Key.Bytes()})
	require.NoError(t, err)
	require.NotNil(t, values[keys[0]])
	require.Nil(t, values[chs[2].Key])

	for i, kp := range proof.FileKeyProofs {
		require.NoError(t, kp.Verify(chs[i].Key, forest.ScopeChallenge), "file key proof %d", i)
	}
}

func TestGenerateProofRemovalOmitsFileKeyProof(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ref := testRef(0)
	keys := populateForest(t, s, ref, 8)

	chs := []challenge.Challenge{
		{Key: keys[0], RemoveMutation: true},
		{Key: keys[1]},
	}
	proof, err := s.GenerateProof(ctx, ref, chs)
	require.NoError(t, err)

	// the removal is proved by the forest proof alone
	require.Len(t, proof.FileKeyProofs, 1)
	require.Equal(t, keys[1], proof.FileKeyProofs[0].FileKey)
}

func TestGenerateProofRepeatedChallenges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ref := testRef(0)
	keys := populateForest(t, s, ref, 8)

	// repeat-last padding produces exactly this shape
	chs := []challenge.Challenge{
		{Key: keys[0]},
		{Key: keys[0]},
		{Key: keys[0]},
	}
	proof, err := s.GenerateProof(ctx, ref, chs)
	require.NoError(t, err)
	require.Len(t, proof.FileKeyProofs, 1, "repeats share one proof entry")
}

func TestGenerateProofBudget(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ref := testRef(0)
	keys := populateForest(t, s, ref, 30)

	within := make([]challenge.Challenge, 0, MaxProofsPerRound)
	for i := 0; i < MaxProofsPerRound; i++ {
		within = append(within, challenge.Challenge{Key: keys[i]})
	}
	_, err := s.GenerateProof(ctx, ref, within)
	require.NoError(t, err)

	over := append(within, challenge.Challenge{Key: keys[MaxProofsPerRound]})
	_, err = s.GenerateProof(ctx, ref, over)
	require.ErrorIs(t, err, ErrRoundBudgetExceeded)

	// misses do not consume budget
	overWithMisses := append(within[:MaxProofsPerRound:MaxProofsPerRound],
		challenge.Challenge{Key: common.Hash(blake2b.Sum256([]byte("m1")))},
		challenge.Challenge{Key: common.Hash(blake2b.Sum256([]byte("m2")))})
	_, err = s.GenerateProof(ctx, ref, overWithMisses)
	require.NoError(t, err)
}

func TestGenerateProofSerializeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ref := testRef(0)
	keys := populateForest(t, s, ref, 6)

	chs := []challenge.Challenge{{Key: keys[0]}, {Key: keys[1], RemoveMutation: true}}
	proof, err := s.GenerateProof(ctx, ref, chs)
	require.NoError(t, err)

	blob, err := proof.Serialize()
	require.NoError(t, err)
	decoded, err := DeserializeProof(blob)
	require.NoError(t, err)
	require.Len(t, decoded.FileKeyProofs, len(proof.FileKeyProofs))

	root, err := s.Root(ctx, ref)
	require.NoError(t, err)
	_, err = forest.VerifyForestProof(decoded.ForestProof, root,
		[][]byte{keys[0].Bytes(), keys[1].Bytes()})
	require.NoError(t, err)
}

func TestGenerateProofUnknownForest(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.GenerateProof(ctx, testRef(7), []challenge.Challenge{
		{Key: common.Hash(blake2b.Sum256([]byte("x")))},
	})
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestGenerateStandaloneFileKeyProof(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ref := testRef(0)
	keys := populateForest(t, s, ref, 4)

	chall := common.Hash(blake2b.Sum256([]byte("confirm")))
	kp, err := s.GenerateFileKeyProof(ctx, ref, keys[2], chall, forest.ScopeBspConfirm)
	require.NoError(t, err)
	require.NoError(t, kp.Verify(chall, forest.ScopeBspConfirm))
	require.Error(t, kp.Verify(chall, forest.ScopeChallenge))
}
