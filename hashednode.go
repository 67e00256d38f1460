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
	"github.com/ethereum/go-ethereum/common"
)

// HashedNode is a subtree that is known only by its digest: either a
// node that has not been loaded from the store yet, or a subtree that a
// multiproof did not open. It cannot be traversed.
type HashedNode struct {
	hash common.Hash

	// set when the proof that produced this node asserts the hashed
	// subtree is a single leaf
	isLeaf bool
}

// NewHashedRoot wraps a persisted root digest so it can be expanded
// from a node store.
func NewHashedRoot(h common.Hash) ForestNode {
	return &HashedNode{hash: h}
}

func (*HashedNode) Insert([]byte, []byte) error {
	return errInsertIntoHash
}

func (*HashedNode) Delete([]byte) (ForestNode, error) {
	return nil, errDeleteHash
}

func (*HashedNode) Get([]byte) ([]byte, error) {
	return nil, errReadFromHash
}

func (n *HashedNode) Commit() common.Hash {
	return n.hash
}

func (n *HashedNode) Hash() common.Hash {
	return n.hash
}

func (n *HashedNode) Copy() ForestNode {
	return &HashedNode{hash: n.hash, isLeaf: n.isLeaf}
}

func (*HashedNode) collectProof(keylist, []byte, *proofElements) error {
	return errMissingNode
}
