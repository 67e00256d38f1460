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

package forest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func buildForest(t *testing.T, n int) ForestNode {
	t.Helper()
	root := New()
	for i := 0; i < n; i++ {
		mustInsert(t, root, testKey(i), testValue(i))
	}
	return root
}

func TestProofSingleLeaf(t *testing.T) {
	root := buildForest(t, 1)
	before := root.Commit()

	proof, err := MakeForestProof(root, [][]byte{testKey(0)})
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	values, err := VerifyForestProof(proof, before, [][]byte{testKey(0)})
	if err != nil {
		t.Fatalf("verifying proof: %v", err)
	}
	if got := values[common.BytesToHash(testKey(0))]; !bytes.Equal(got, testValue(0)) {
		t.Fatalf("proof resolved value %x, want %x", got, testValue(0))
	}
	if root.Commit() != before {
		t.Fatal("proof generation mutated the root")
	}
}

func TestProofRemoveSingleLeaf(t *testing.T) {
	root := buildForest(t, 1)

	proof, err := MakeForestProof(root, [][]byte{testKey(0)})
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	partial, err := TreeFromProof(proof)
	if err != nil {
		t.Fatalf("rebuilding partial trie: %v", err)
	}
	newRoot, err := ApplyRemovals(partial, [][]byte{testKey(0)})
	if err != nil {
		t.Fatalf("applying removal: %v", err)
	}
	if newRoot != EmptyRoot() {
		t.Fatalf("removing the only leaf gave root %x, want empty root %x", newRoot, EmptyRoot())
	}
}

func TestProofInclusionAndNonInclusion(t *testing.T) {
	root := buildForest(t, 20)

	var keys [][]byte
	for i := 0; i < 20; i++ {
		keys = append(keys, testKey(i))
	}
	// keys 100.. are known not to be stored
	for i := 100; i < 105; i++ {
		keys = append(keys, testKey(i))
	}

	proof, err := MakeForestProof(root, keys)
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	values, err := VerifyForestProof(proof, root.Commit(), keys)
	if err != nil {
		t.Fatalf("verifying proof: %v", err)
	}

	for i := 0; i < 20; i++ {
		if got := values[common.BytesToHash(testKey(i))]; !bytes.Equal(got, testValue(i)) {
			t.Fatalf("stored key %d resolved to %x, want %x", i, got, testValue(i))
		}
	}
	for i := 100; i < 105; i++ {
		if got := values[common.BytesToHash(testKey(i))]; got != nil {
			t.Fatalf("absent key %d resolved to %x, want nil", i, got)
		}
	}
}

func TestProofRepeatedChallenges(t *testing.T) {
	root := buildForest(t, 4)

	keys := [][]byte{testKey(1), testKey(1), testKey(1), testKey(2)}
	proof, err := MakeForestProof(root, keys)
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	values, err := VerifyForestProof(proof, root.Commit(), keys)
	if err != nil {
		t.Fatalf("verifying proof: %v", err)
	}
	if got := values[common.BytesToHash(testKey(1))]; !bytes.Equal(got, testValue(1)) {
		t.Fatalf("repeated key resolved to %x, want %x", got, testValue(1))
	}
}

func TestProofWrongRoot(t *testing.T) {
	root := buildForest(t, 8)

	proof, err := MakeForestProof(root, [][]byte{testKey(0)})
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	other := buildForest(t, 9)
	if _, err := VerifyForestProof(proof, other.Commit(), [][]byte{testKey(0)}); !errors.Is(err, ErrRootMismatch) {
		t.Fatalf("expected ErrRootMismatch, got %v", err)
	}
}

func TestProofTamperedValue(t *testing.T) {
	root := buildForest(t, 8)

	proof, err := MakeForestProof(root, [][]byte{testKey(0)})
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	for i := range proof.Leaves {
		if proof.Leaves[i].Key == common.BytesToHash(testKey(0)) {
			proof.Leaves[i].Value[0] ^= 0xff
		}
	}
	if _, err := VerifyForestProof(proof, root.Commit(), [][]byte{testKey(0)}); !errors.Is(err, ErrRootMismatch) {
		t.Fatalf("expected ErrRootMismatch, got %v", err)
	}
}

func TestProofLeavesOutOfOrder(t *testing.T) {
	root := buildForest(t, 8)

	var keys [][]byte
	for i := 0; i < 8; i++ {
		keys = append(keys, testKey(i))
	}
	proof, err := MakeForestProof(root, keys)
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	if len(proof.Leaves) < 2 {
		t.Fatal("proof too small for the ordering check")
	}
	proof.Leaves[0], proof.Leaves[1] = proof.Leaves[1], proof.Leaves[0]
	if _, err := VerifyForestProof(proof, root.Commit(), keys); !errors.Is(err, ErrNotConsecutiveLeaves) {
		t.Fatalf("expected ErrNotConsecutiveLeaves, got %v", err)
	}
}

func TestProofNodesOutOfOrder(t *testing.T) {
	k1 := common.HexToHash("0x1100000000000000000000000000000000000000000000000000000000000001")
	k2 := common.HexToHash("0x1100000000000000000000000000000000000000000000000000000000000002")
	k3 := common.HexToHash("0x2200000000000000000000000000000000000000000000000000000000000003")
	k4 := common.HexToHash("0x2200000000000000000000000000000000000000000000000000000000000004")

	root := New()
	for i, k := range []common.Hash{k1, k2, k3, k4} {
		mustInsert(t, root, k[:], testValue(i))
	}

	keys := [][]byte{k1[:], k3[:]}
	proof, err := MakeForestProof(root, keys)
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	if len(proof.Nodes) < 3 {
		t.Fatalf("expected at least 3 opened branches, got %d", len(proof.Nodes))
	}
	proof.Nodes[1], proof.Nodes[2] = proof.Nodes[2], proof.Nodes[1]
	if _, err := VerifyForestProof(proof, root.Commit(), keys); !errors.Is(err, ErrNotConsecutiveLeaves) {
		t.Fatalf("expected ErrNotConsecutiveLeaves, got %v", err)
	}
}

// Removing a proven leaf through the reconstructed partial trie must
// land on the same root as removing it from the full forest.
func TestApplyRemovalsCommutesWithDelete(t *testing.T) {
	root := buildForest(t, 20)

	removed := [][]byte{testKey(3), testKey(7), testKey(11)}
	proofKeys := append([][]byte(nil), removed...)
	for _, key := range removed {
		if witness, ok := MergeWitness(root, key); ok {
			proofKeys = append(proofKeys, witness)
		}
	}

	proof, err := MakeForestProof(root, proofKeys)
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	partial, err := TreeFromProof(proof)
	if err != nil {
		t.Fatalf("rebuilding partial trie: %v", err)
	}
	if partial.Commit() != root.Commit() {
		t.Fatalf("partial trie root %x, want %x", partial.Commit(), root.Commit())
	}

	got, err := ApplyRemovals(partial, removed)
	if err != nil {
		t.Fatalf("applying removals: %v", err)
	}

	direct := root.Copy()
	for _, key := range removed {
		if _, err := direct.Delete(key); err != nil {
			t.Fatalf("direct delete: %v", err)
		}
	}
	if got != direct.Commit() {
		t.Fatalf("removal through proof gave %x, direct delete gave %x", got, direct.Commit())
	}
}

// Omitting the merge witness leaf must make the removal fail loudly
// instead of computing a wrong root.
func TestApplyRemovalsMissingWitness(t *testing.T) {
	k1 := common.HexToHash("0xab00000000000000000000000000000000000000000000000000000000000001")
	k2 := common.HexToHash("0xab00000000000000000000000000000000000000000000000000000000000002")
	k3 := common.HexToHash("0xcd00000000000000000000000000000000000000000000000000000000000003")

	root := New()
	for i, k := range []common.Hash{k1, k2, k3} {
		mustInsert(t, root, k[:], testValue(i))
	}

	// prove only k1; its sibling k2 stays hashed in the partial trie
	proof, err := MakeForestProof(root, [][]byte{k1[:]})
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	partial, err := TreeFromProof(proof)
	if err != nil {
		t.Fatalf("rebuilding partial trie: %v", err)
	}
	if _, err := ApplyRemovals(partial, [][]byte{k1[:]}); err == nil {
		t.Fatal("expected removal without the merge witness to fail")
	}
}

func TestProofDoesNotOpenUnchallengedLeaves(t *testing.T) {
	root := buildForest(t, 32)

	proof, err := MakeForestProof(root, [][]byte{testKey(5)})
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	for _, lf := range proof.Leaves {
		if lf.Key != common.BytesToHash(testKey(5)) {
			t.Fatalf("proof opened unchallenged leaf %x", lf.Key)
		}
	}
}

func TestProofSerializeRoundTrip(t *testing.T) {
	root := buildForest(t, 8)

	keys := [][]byte{testKey(0), testKey(3), testKey(100)}
	proof, err := MakeForestProof(root, keys)
	if err != nil {
		t.Fatalf("making proof: %v", err)
	}
	blob, err := proof.Serialize()
	if err != nil {
		t.Fatalf("serializing proof: %v", err)
	}
	decoded, err := DeserializeForestProof(blob)
	if err != nil {
		t.Fatalf("deserializing proof: %v", err)
	}
	if _, err := VerifyForestProof(decoded, root.Commit(), keys); err != nil {
		t.Fatalf("verifying decoded proof: %v", err)
	}
}

func TestProofNoKeys(t *testing.T) {
	root := buildForest(t, 2)
	if _, err := MakeForestProof(root, nil); err == nil {
		t.Fatal("expected an error for an empty challenge set")
	}
}
