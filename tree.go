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

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

const (
	// KeySize is the size of a file key, in bytes.
	KeySize = 32

	// NodeWidth is the number of children of an internal node,
	// one per key nibble.
	NodeWidth = 16

	// KeyDepth is the maximum depth of a forest, in nibbles.
	KeyDepth = 2 * KeySize
)

// Domain separators for node hashing. A leaf and a branch can never
// produce the same digest.
const (
	leafHashPrefix   = 0x01
	branchHashPrefix = 0x02
)

var (
	// ErrDuplicateKey is returned when inserting a file key that is
	// already committed to the forest.
	ErrDuplicateKey = errors.New("file key already present in forest")

	// ErrKeyNotFound is returned when removing or reading a file key
	// that is not committed to the forest.
	ErrKeyNotFound = errors.New("file key not found in forest")

	// ErrInvalidKeyLength is returned for keys that are not exactly
	// KeySize bytes.
	ErrInvalidKeyLength = errors.New("invalid file key length")

	errInsertIntoHash  = errors.New("trying to insert into a hashed subtree")
	errDeleteHash      = errors.New("trying to delete through a hashed subtree")
	errReadFromHash    = errors.New("trying to read from a hashed subtree")
	errMissingNode     = errors.New("missing trie node, proof does not cover this path")
	errMissingNodeType = errors.New("single remaining child is hashed, cannot re-canonicalize")
)

// ForestNode is one node of a provider's forest trie. Keys are 32-byte
// file keys, traversed one nibble at a time; values commit to the file's
// metadata.
type ForestNode interface {
	// Insert adds a new (key, value) leaf. It fails with ErrDuplicateKey
	// if the key is already present: file metadata is immutable, there
	// are no in-place updates.
	Insert(key, value []byte) error

	// Delete removes the leaf for `key` and returns the node that must
	// replace the receiver, so that the trie keeps its canonical shape.
	Delete(key []byte) (ForestNode, error)

	// Get returns the value committed for `key`.
	Get(key []byte) ([]byte, error)

	// Commit computes (and caches) the digest of the subtree.
	Commit() common.Hash

	// Hash returns the digest of the subtree, computing it if needed.
	Hash() common.Hash

	// Copy returns a deep copy of the subtree.
	Copy() ForestNode

	collectProof(keys keylist, path []byte, pe *proofElements) error
}

type (
	// InternalNode is a branch with one child slot per nibble.
	InternalNode struct {
		children [NodeWidth]ForestNode

		// node depth in the trie, in nibbles
		depth byte

		// number of non-empty children
		count int

		// cached digest of this subtree, nil when dirty
		hash *common.Hash
	}

	// LeafNode commits a file key to its encoded metadata.
	LeafNode struct {
		key   []byte
		value []byte

		hash *common.Hash
	}

	// Empty is an unoccupied child slot.
	Empty struct{}
)

func newInternalNode(depth byte) *InternalNode {
	node := new(InternalNode)
	for idx := range node.children {
		node.children[idx] = Empty{}
	}
	node.depth = depth
	return node
}

// New creates a new, empty forest root.
func New() ForestNode {
	return newInternalNode(0)
}

// EmptyRoot returns the root digest of a forest with no leaves.
func EmptyRoot() common.Hash {
	return New().Commit()
}

// offsetNibble extracts the nibble of `key` that selects the child slot
// at the given depth.
func offsetNibble(key []byte, depth byte) byte {
	if depth&1 == 0 {
		return key[depth/2] >> 4
	}
	return key[depth/2] & 0x0f
}

func (n *InternalNode) Insert(key, value []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKeyLength
	}

	nib := offsetNibble(key, n.depth)
	switch child := n.children[nib].(type) {
	case Empty:
		n.children[nib] = &LeafNode{key: key, value: value}
		n.count++
	case *HashedNode:
		return errInsertIntoHash
	case *LeafNode:
		if bytes.Equal(child.key, key) {
			return ErrDuplicateKey
		}
		// Push the colliding leaf down until the two keys diverge.
		branch := newInternalNode(n.depth + 1)
		n.children[nib] = branch
		if err := branch.Insert(child.key, child.value); err != nil {
			return err
		}
		if err := branch.Insert(key, value); err != nil {
			return err
		}
	case *InternalNode:
		if err := child.Insert(key, value); err != nil {
			return err
		}
	}
	n.hash = nil
	return nil
}

func (n *InternalNode) Delete(key []byte) (ForestNode, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	nib := offsetNibble(key, n.depth)
	switch child := n.children[nib].(type) {
	case Empty:
		return nil, ErrKeyNotFound
	case *HashedNode:
		return nil, errDeleteHash
	case *LeafNode:
		if !bytes.Equal(child.key, key) {
			return nil, ErrKeyNotFound
		}
		n.children[nib] = Empty{}
		n.count--
	case *InternalNode:
		repl, err := child.Delete(key)
		if err != nil {
			return nil, err
		}
		n.children[nib] = repl
	}
	n.hash = nil

	// Re-canonicalize: a non-root branch left with a single leaf child
	// is replaced by that leaf, so that the root stays a pure function
	// of the leaf set. Chains of branches with a single internal child
	// are part of the canonical shape and stay.
	if n.depth > 0 {
		if n.count == 0 {
			return Empty{}, nil
		}
		if n.count == 1 {
			switch only := n.singleChild().(type) {
			case *LeafNode:
				return only, nil
			case *HashedNode:
				if only.isLeaf {
					return nil, errMissingNodeType
				}
			}
		}
	}
	return n, nil
}

func (n *InternalNode) singleChild() ForestNode {
	for _, child := range n.children {
		if _, ok := child.(Empty); !ok {
			return child
		}
	}
	return Empty{}
}

func (n *InternalNode) Get(key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	nib := offsetNibble(key, n.depth)
	switch child := n.children[nib].(type) {
	case Empty:
		return nil, ErrKeyNotFound
	case *HashedNode:
		return nil, errReadFromHash
	case *LeafNode:
		if !bytes.Equal(child.key, key) {
			return nil, ErrKeyNotFound
		}
		return child.value, nil
	case *InternalNode:
		return child.Get(key)
	}
	return nil, ErrKeyNotFound
}

func (n *InternalNode) Commit() common.Hash {
	if n.hash != nil {
		return *n.hash
	}
	var buf [1 + NodeWidth*32]byte
	buf[0] = branchHashPrefix
	for i, child := range n.children {
		h := child.Commit()
		copy(buf[1+i*32:], h[:])
	}
	h := common.Hash(blake2b.Sum256(buf[:]))
	n.hash = &h
	return h
}

func (n *InternalNode) Hash() common.Hash {
	return n.Commit()
}

func (n *InternalNode) Copy() ForestNode {
	cpy := &InternalNode{depth: n.depth, count: n.count}
	for i, child := range n.children {
		cpy.children[i] = child.Copy()
	}
	if n.hash != nil {
		h := *n.hash
		cpy.hash = &h
	}
	return cpy
}

func (l *LeafNode) Key() []byte   { return l.key }
func (l *LeafNode) Value() []byte { return l.value }

func (l *LeafNode) Insert(key, value []byte) error {
	return errors.New("cannot insert into a leaf, split in the parent branch")
}

func (l *LeafNode) Delete([]byte) (ForestNode, error) {
	return nil, errors.New("cannot delete a leaf in-place, clear it in the parent branch")
}

func (l *LeafNode) Get(key []byte) ([]byte, error) {
	if !bytes.Equal(l.key, key) {
		return nil, ErrKeyNotFound
	}
	return l.value, nil
}

func (l *LeafNode) Commit() common.Hash {
	if l.hash != nil {
		return *l.hash
	}
	h := leafDigest(l.key, l.value)
	l.hash = &h
	return h
}

func (l *LeafNode) Hash() common.Hash {
	return l.Commit()
}

func (l *LeafNode) Copy() ForestNode {
	cpy := &LeafNode{
		key:   append([]byte(nil), l.key...),
		value: append([]byte(nil), l.value...),
	}
	if l.hash != nil {
		h := *l.hash
		cpy.hash = &h
	}
	return cpy
}

func leafDigest(key, value []byte) common.Hash {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{leafHashPrefix})
	h.Write(key)
	h.Write(value)
	return common.BytesToHash(h.Sum(nil))
}

func (Empty) Insert(key, value []byte) error {
	return errors.New("cannot insert into an empty slot directly")
}

func (Empty) Delete([]byte) (ForestNode, error) {
	return nil, ErrKeyNotFound
}

func (Empty) Get([]byte) ([]byte, error) {
	return nil, ErrKeyNotFound
}

func (Empty) Commit() common.Hash {
	return common.Hash{}
}

func (Empty) Hash() common.Hash {
	return common.Hash{}
}

func (Empty) Copy() ForestNode {
	return Empty{}
}

func (Empty) collectProof(keylist, []byte, *proofElements) error {
	return errMissingNode
}

type keylist [][]byte

func (kl keylist) Len() int {
	return len(kl)
}

func (kl keylist) Less(i, j int) bool {
	return bytes.Compare(kl[i], kl[j]) == -1
}

func (kl keylist) Swap(i, j int) {
	kl[i], kl[j] = kl[j], kl[i]
}
