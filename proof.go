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
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrRootMismatch is returned when a forest proof does not verify
	// against the expected root.
	ErrRootMismatch = errors.New("forest proof does not match the expected root")

	// ErrNotConsecutiveLeaves is returned when the leaf or node ordering
	// implied by a proof violates trie consistency.
	ErrNotConsecutiveLeaves = errors.New("proof leaves are not in consecutive trie order")

	// ErrMalformedProof is returned when a proof's structure is
	// internally inconsistent.
	ErrMalformedProof = errors.New("malformed forest proof")

	// ErrIncompleteProof is returned when a proof does not open the
	// path of one of the challenged keys.
	ErrIncompleteProof = errors.New("proof does not cover a challenged path")

	errNoKeys = errors.New("no challenge key provided for proof")
)

// ProofNode is one opened branch of a forest multiproof: the nibble path
// from the root, a bitmap of occupied child slots, and the digests of
// the occupied children that the proof does not open further. Children
// that are opened (deeper ProofNodes or ProofLeaves) are omitted from
// Hashes and recomputed by the verifier.
type ProofNode struct {
	Path       []byte        `json:"path"`
	Bitmap     uint16        `json:"bitmap"`
	LeafBitmap uint16        `json:"leafBitmap"`
	Hashes     []common.Hash `json:"hashes"`
}

// ProofLeaf is an opened leaf: an inclusion target, a non-inclusion
// witness sharing a path prefix with a challenged key, or the surviving
// sibling of a proven removal.
type ProofLeaf struct {
	Key   common.Hash   `json:"key"`
	Value hexutil.Bytes `json:"value"`
}

// ForestProof is a compact multiproof answering inclusion and
// non-inclusion for a whole challenge set against a single forest root.
type ForestProof struct {
	Nodes  []ProofNode `json:"nodes"`
	Leaves []ProofLeaf `json:"leaves"`
}

// Serialize encodes the proof into the opaque blob shipped over RPC and
// embedded into benchmark fixtures.
func (p *ForestProof) Serialize() ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

// DeserializeForestProof decodes a proof blob.
func DeserializeForestProof(blob []byte) (*ForestProof, error) {
	proof := new(ForestProof)
	if err := rlp.DecodeBytes(blob, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

type proofElements struct {
	nodes  []ProofNode
	leaves []ProofLeaf
}

func (pe *proofElements) appendLeaf(l *LeafNode) {
	pe.leaves = append(pe.leaves, ProofLeaf{
		Key:   common.BytesToHash(l.key),
		Value: append([]byte(nil), l.value...),
	})
}

func (n *InternalNode) collectProof(keys keylist, path []byte, pe *proofElements) error {
	pn := ProofNode{Path: append([]byte(nil), path...)}
	var subkeys [NodeWidth]keylist
	for _, key := range keys {
		nib := offsetNibble(key, n.depth)
		subkeys[nib] = append(subkeys[nib], key)
	}

	for i := byte(0); i < NodeWidth; i++ {
		child := n.children[i]
		if _, ok := child.(Empty); ok {
			continue
		}
		pn.Bitmap |= 1 << i
		if _, ok := child.(*LeafNode); ok {
			pn.LeafBitmap |= 1 << i
		}
		if len(subkeys[i]) == 0 {
			pn.Hashes = append(pn.Hashes, child.Hash())
		}
	}
	pe.nodes = append(pe.nodes, pn)

	// open challenged subtrees, in ascending nibble order so that the
	// collected leaves come out sorted by key
	for i := byte(0); i < NodeWidth; i++ {
		if len(subkeys[i]) == 0 {
			continue
		}
		switch child := n.children[i].(type) {
		case Empty:
			// non-inclusion, witnessed by the unset bitmap slot
		case *LeafNode:
			// inclusion target or non-inclusion witness
			pe.appendLeaf(child)
		case *InternalNode:
			if err := child.collectProof(subkeys[i], append(path, i), pe); err != nil {
				return err
			}
		case *HashedNode:
			return errMissingNode
		}
	}
	return nil
}

func (l *LeafNode) collectProof(_ keylist, _ []byte, pe *proofElements) error {
	pe.appendLeaf(l)
	return nil
}

// MakeForestProof produces one multiproof covering all challenge keys at
// once, establishing inclusion for keys that match a leaf and
// non-inclusion for keys that do not. Repeated challenges are answered
// by the same proof entry.
func MakeForestProof(root ForestNode, keys [][]byte) (*ForestProof, error) {
	if len(keys) == 0 {
		return nil, errNoKeys
	}
	for _, k := range keys {
		if len(k) != KeySize {
			return nil, ErrInvalidKeyLength
		}
	}

	sorted := make(keylist, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[string(k)]; ok {
			continue
		}
		seen[string(k)] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Sort(sorted)

	root.Commit()
	pe := new(proofElements)
	if err := root.collectProof(sorted, nil, pe); err != nil {
		return nil, err
	}
	return &ForestProof{Nodes: pe.nodes, Leaves: pe.leaves}, nil
}

// MergeWitness returns the key of the leaf that would be merged upwards
// if `key` were removed from the forest: removing one of the two
// remaining children of a branch pulls the surviving leaf up. A proof
// substantiating the removal must open that leaf so the verifier can
// recompute the post-removal root.
func MergeWitness(root ForestNode, key []byte) ([]byte, bool) {
	n, ok := root.(*InternalNode)
	if !ok {
		return nil, false
	}
	for {
		nib := offsetNibble(key, n.depth)
		switch child := n.children[nib].(type) {
		case *InternalNode:
			n = child
		case *LeafNode:
			if !bytes.Equal(child.key, key) {
				return nil, false
			}
			if n.depth == 0 || n.count != 2 {
				return nil, false
			}
			for i, other := range n.children {
				if byte(i) == nib {
					continue
				}
				if leaf, ok := other.(*LeafNode); ok {
					return leaf.key, true
				}
			}
			return nil, false
		default:
			return nil, false
		}
	}
}

// TreeFromProof rebuilds the partial trie a proof describes: opened
// branches become internal nodes, opened leaves become leaf nodes, and
// everything else becomes hashed nodes. The rebuilt trie is enough to
// recompute the root, resolve every challenged key, and replay remove
// mutations.
func TreeFromProof(proof *ForestProof) (*InternalNode, error) {
	if len(proof.Nodes) == 0 || len(proof.Nodes[0].Path) != 0 {
		return nil, ErrMalformedProof
	}

	// node order must be a pre-order walk with children ascending, and
	// leaves must be in strict key order
	for i := 1; i < len(proof.Nodes); i++ {
		if string(proof.Nodes[i-1].Path) >= string(proof.Nodes[i].Path) {
			return nil, ErrNotConsecutiveLeaves
		}
	}
	for i := 1; i < len(proof.Leaves); i++ {
		if bytes.Compare(proof.Leaves[i-1].Key[:], proof.Leaves[i].Key[:]) >= 0 {
			return nil, ErrNotConsecutiveLeaves
		}
	}

	branches := make(map[string]*InternalNode, len(proof.Nodes))
	for i := range proof.Nodes {
		pn := &proof.Nodes[i]
		if len(pn.Path) >= KeyDepth {
			return nil, ErrMalformedProof
		}
		if _, ok := branches[string(pn.Path)]; ok {
			return nil, ErrMalformedProof
		}
		branches[string(pn.Path)] = newInternalNode(byte(len(pn.Path)))
	}

	// every non-root node must hang off an opened parent
	for i := 1; i < len(proof.Nodes); i++ {
		pn := &proof.Nodes[i]
		if _, ok := branches[string(pn.Path[:len(pn.Path)-1])]; !ok {
			return nil, ErrMalformedProof
		}
	}

	// walk each leaf down the opened branches to the slot it occupies
	leafSlot := make(map[string]*ProofLeaf, len(proof.Leaves))
	for i := range proof.Leaves {
		lf := &proof.Leaves[i]
		path := make([]byte, 0, KeyDepth)
		for {
			nib := offsetNibble(lf.Key[:], byte(len(path)))
			path = append(path, nib)
			if _, ok := branches[string(path)]; ok {
				continue
			}
			if _, dup := leafSlot[string(path)]; dup {
				return nil, ErrNotConsecutiveLeaves
			}
			leafSlot[string(path)] = lf
			break
		}
	}

	for i := range proof.Nodes {
		pn := &proof.Nodes[i]
		branch := branches[string(pn.Path)]
		hashIdx := 0
		for nib := byte(0); nib < NodeWidth; nib++ {
			if pn.Bitmap&(1<<nib) == 0 {
				continue
			}
			branch.count++
			childPath := string(append(append([]byte(nil), pn.Path...), nib))
			if sub, ok := branches[childPath]; ok {
				if pn.LeafBitmap&(1<<nib) != 0 {
					return nil, ErrMalformedProof
				}
				branch.children[nib] = sub
				continue
			}
			if lf, ok := leafSlot[childPath]; ok {
				if pn.LeafBitmap&(1<<nib) == 0 {
					return nil, ErrMalformedProof
				}
				branch.children[nib] = &LeafNode{
					key:   append([]byte(nil), lf.Key[:]...),
					value: append([]byte(nil), lf.Value...),
				}
				delete(leafSlot, childPath)
				continue
			}
			if hashIdx >= len(pn.Hashes) {
				return nil, ErrMalformedProof
			}
			branch.children[nib] = &HashedNode{
				hash:   pn.Hashes[hashIdx],
				isLeaf: pn.LeafBitmap&(1<<nib) != 0,
			}
			hashIdx++
		}
		if hashIdx != len(pn.Hashes) {
			return nil, ErrMalformedProof
		}
	}

	// a leaf that could not be attached anywhere means the prover lied
	// about the trie shape
	if len(leafSlot) != 0 {
		return nil, ErrMalformedProof
	}

	return branches[""], nil
}

// VerifyForestProof checks a multiproof against the expected root and
// resolves every challenge key: present keys map to their committed
// value, absent keys map to nil.
func VerifyForestProof(proof *ForestProof, root common.Hash, keys [][]byte) (map[common.Hash][]byte, error) {
	partial, err := TreeFromProof(proof)
	if err != nil {
		return nil, err
	}
	if partial.Commit() != root {
		return nil, ErrRootMismatch
	}

	out := make(map[common.Hash][]byte, len(keys))
	for _, key := range keys {
		if len(key) != KeySize {
			return nil, ErrInvalidKeyLength
		}
		val, err := resolveKey(partial, key)
		if err != nil {
			return nil, err
		}
		out[common.BytesToHash(key)] = val
	}
	return out, nil
}

func resolveKey(root *InternalNode, key []byte) ([]byte, error) {
	cur := ForestNode(root)
	for {
		switch c := cur.(type) {
		case *InternalNode:
			cur = c.children[offsetNibble(key, c.depth)]
		case *LeafNode:
			if bytes.Equal(c.key, key) {
				return c.value, nil
			}
			// a different leaf on the same path witnesses absence
			return nil, nil
		case Empty:
			return nil, nil
		case *HashedNode:
			return nil, ErrIncompleteProof
		default:
			return nil, ErrMalformedProof
		}
	}
}

// ApplyRemovals deletes the given keys from a (possibly partial) trie
// and returns the recomputed root. Deletions of distinct leaves are
// independent, so the order only affects intermediate roots, never the
// final one.
func ApplyRemovals(root ForestNode, keys [][]byte) (common.Hash, error) {
	for _, key := range keys {
		if _, err := root.Delete(key); err != nil {
			return common.Hash{}, err
		}
	}
	return root.Commit(), nil
}
