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
	"errors"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/xerrors"
)

const (
	leafRLPType     = 1
	internalRLPType = 2
)

// ErrInvalidNodeEncoding is returned when a persisted node record does
// not decode to a known node kind.
var ErrInvalidNodeEncoding = errors.New("invalid node encoding")

// NodeResolverFn fetches the serialized record of a node by its digest,
// typically from the provider's local datastore.
type NodeResolverFn func(common.Hash) ([]byte, error)

// nodeRLP is the persisted form of a trie node. Leaf records carry Key
// and Value; internal records carry Bitmap and one child digest per set
// bit, in ascending nibble order.
type nodeRLP struct {
	Type     uint8
	Key      []byte
	Value    []byte
	Bitmap   uint16
	Children []common.Hash
}

// Serialize encodes an internal node with its children referenced by
// digest, so that unchanged subtrees are shared between revisions.
func (n *InternalNode) Serialize() ([]byte, error) {
	enc := nodeRLP{Type: internalRLPType}
	for i, child := range n.children {
		if _, ok := child.(Empty); ok {
			continue
		}
		enc.Bitmap |= 1 << i
		enc.Children = append(enc.Children, child.Hash())
	}
	return rlp.EncodeToBytes(&enc)
}

func (l *LeafNode) Serialize() ([]byte, error) {
	return rlp.EncodeToBytes(&nodeRLP{Type: leafRLPType, Key: l.key, Value: l.value})
}

// ParseNode decodes a persisted node record. Children of internal nodes
// come back as hashed nodes; use Expand to materialize a full subtree.
func ParseNode(serialized []byte, depth byte) (ForestNode, error) {
	var dec nodeRLP
	if err := rlp.DecodeBytes(serialized, &dec); err != nil {
		return nil, err
	}

	switch dec.Type {
	case leafRLPType:
		if len(dec.Key) != KeySize {
			return nil, ErrInvalidNodeEncoding
		}
		return &LeafNode{key: dec.Key, value: dec.Value}, nil
	case internalRLPType:
		if bits.OnesCount16(dec.Bitmap) != len(dec.Children) {
			return nil, ErrInvalidNodeEncoding
		}
		n := newInternalNode(depth)
		childIdx := 0
		for i := byte(0); i < NodeWidth; i++ {
			if dec.Bitmap&(1<<i) == 0 {
				continue
			}
			n.children[i] = &HashedNode{hash: dec.Children[childIdx]}
			childIdx++
			n.count++
		}
		return n, nil
	default:
		return nil, ErrInvalidNodeEncoding
	}
}

// Expand resolves every hashed node under `n`, returning a fully
// materialized subtree. Each resolved record is checked against the
// digest it was fetched by, so a corrupted store is detected here
// rather than at proof time.
func Expand(n ForestNode, depth byte, resolve NodeResolverFn) (ForestNode, error) {
	switch node := n.(type) {
	case *HashedNode:
		serialized, err := resolve(node.hash)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseNode(serialized, depth)
		if err != nil {
			return nil, err
		}
		if parsed.Commit() != node.hash {
			return nil, xerrors.Errorf("node %s: digest mismatch: %w", node.hash, ErrInvalidNodeEncoding)
		}
		return Expand(parsed, depth, resolve)
	case *InternalNode:
		for i, child := range node.children {
			if _, ok := child.(Empty); ok {
				continue
			}
			expanded, err := Expand(child, depth+1, resolve)
			if err != nil {
				return nil, err
			}
			node.children[i] = expanded
		}
		node.hash = nil
		return node, nil
	default:
		return n, nil
	}
}

// WalkNodes serializes every materialized node of the subtree and hands
// it to `put`, keyed by digest. Hashed nodes are skipped: their records
// are already persisted and unchanged.
func WalkNodes(n ForestNode, put func(common.Hash, []byte) error) error {
	switch node := n.(type) {
	case *InternalNode:
		serialized, err := node.Serialize()
		if err != nil {
			return err
		}
		if err := put(node.Commit(), serialized); err != nil {
			return err
		}
		for _, child := range node.children {
			if err := WalkNodes(child, put); err != nil {
				return err
			}
		}
		return nil
	case *LeafNode:
		serialized, err := node.Serialize()
		if err != nil {
			return err
		}
		return put(node.Commit(), serialized)
	default:
		return nil
	}
}
