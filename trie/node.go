// Package trie implements the sparse Merkle Patricia Trie used for
// stateless block verification. Tries are materialized only along the
// paths covered by a witness; every other subtree is represented by its
// hash and resolved on demand from a content-addressed node store.
package trie

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// node is the interface implemented by all trie node variants.
//
// There are four variants:
//
//   - fullNode:  a branch with up to 16 children plus a value slot
//   - shortNode: a leaf (terminated key) or extension (unterminated key)
//   - hashNode:  an unresolved reference to a node by its keccak hash
//   - valueNode: a raw stored value at the end of a leaf path
//
// A hashNode stands in for any subtree the witness did not materialize;
// touching it requires a node store lookup, and a failed lookup is how
// "insufficient witness" surfaces (see MissingNodeError).
type node interface {
	cache() (hashNode, bool)
	encode(w rlp.EncoderBuffer)
	fstring(string) string
}

type (
	fullNode struct {
		Children [17]node // indices 0-15 are nibble children, 16 is the value slot
		flags    nodeFlag
	}
	shortNode struct {
		Key   []byte // hex nibbles, with terminator for leaves
		Val   node
		flags nodeFlag
	}
	hashNode  []byte
	valueNode []byte
)

// nodeFlag caches hashing metadata for a node.
type nodeFlag struct {
	hash  hashNode // cached hash of the node, nil if not yet computed
	dirty bool     // whether the node has changes that must be rehashed
}

func (n *fullNode) copy() *fullNode   { cp := *n; return &cp }
func (n *shortNode) copy() *shortNode { cp := *n; return &cp }

func (n *fullNode) cache() (hashNode, bool)  { return n.flags.hash, n.flags.dirty }
func (n *shortNode) cache() (hashNode, bool) { return n.flags.hash, n.flags.dirty }
func (n hashNode) cache() (hashNode, bool)   { return nil, true }
func (n valueNode) cache() (hashNode, bool)  { return nil, true }

// fstring renders a node for debugging.
func (n *fullNode) fstring(ind string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[\n%s  ", ind)
	for i, child := range &n.Children {
		if child == nil {
			fmt.Fprintf(&sb, "%s: <nil> ", childIndex(i))
		} else {
			fmt.Fprintf(&sb, "%s: %v", childIndex(i), child.fstring(ind+"  "))
		}
	}
	fmt.Fprintf(&sb, "\n%s] ", ind)
	return sb.String()
}

func (n *shortNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %v} ", n.Key, n.Val.fstring(ind+"  "))
}

func (n hashNode) fstring(ind string) string {
	return fmt.Sprintf("<%x> ", []byte(n))
}

func (n valueNode) fstring(ind string) string {
	return fmt.Sprintf("%x ", []byte(n))
}

func childIndex(i int) string {
	if i == 16 {
		return "value"
	}
	return fmt.Sprintf("%x", i)
}
