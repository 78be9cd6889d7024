package trie

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// hasher folds a trie into its root hash. Nodes whose RLP encoding is
// shorter than 32 bytes are embedded in their parent instead of being
// referenced by hash; force overrides that for the root node.
//
// When put is set, every node that hashes to a 32-byte reference is also
// handed to it together with its encoding; Commit uses this to persist
// the trie into a node store.
type hasher struct {
	put func(hash hashNode, enc []byte) error
	err error
}

// hash collapses a node down into a hash node, also returning a copy of
// the original node initialized with the computed hash to replace it.
func (h *hasher) hash(n node, force bool) (hashed node, cached node) {
	// Return the cached hash if it is known and the node is clean. When
	// persisting, clean subtrees still have to be walked so that their
	// encodings reach the store.
	if hash, dirty := n.cache(); hash != nil && !dirty && h.put == nil {
		return hash, n
	}
	switch n := n.(type) {
	case *shortNode:
		collapsed, cached := h.hashShortNodeChildren(n)
		hashed := h.shortnodeToHash(collapsed, force)
		if hn, ok := hashed.(hashNode); ok {
			cached.flags.hash = hn
		} else {
			cached.flags.hash = nil
		}
		cached.flags.dirty = false
		return hashed, cached
	case *fullNode:
		collapsed, cached := h.hashFullNodeChildren(n)
		hashed := h.fullnodeToHash(collapsed, force)
		if hn, ok := hashed.(hashNode); ok {
			cached.flags.hash = hn
		} else {
			cached.flags.hash = nil
		}
		cached.flags.dirty = false
		return hashed, cached
	default:
		// Value and hash nodes don't have children, so they're left as were.
		return n, n
	}
}

// hashShortNodeChildren collapses the short node. The returned collapsed
// node holds a live reference to the Key and must not be modified.
func (h *hasher) hashShortNodeChildren(n *shortNode) (collapsed, cached *shortNode) {
	collapsed, cached = n.copy(), n.copy()
	collapsed.Key = hexToCompact(n.Key)
	switch n.Val.(type) {
	case *fullNode, *shortNode:
		collapsed.Val, cached.Val = h.hash(n.Val, false)
	}
	return collapsed, cached
}

func (h *hasher) hashFullNodeChildren(n *fullNode) (collapsed *fullNode, cached *fullNode) {
	collapsed, cached = n.copy(), n.copy()
	for i := 0; i < 16; i++ {
		if child := n.Children[i]; child != nil {
			collapsed.Children[i], cached.Children[i] = h.hash(child, false)
		}
	}
	return collapsed, cached
}

// shortnodeToHash computes the hash of the given short node, which must be
// a collapsed node (compact key, children replaced by their hashes).
func (h *hasher) shortnodeToHash(n *shortNode, force bool) node {
	enc := nodeToBytes(n)
	if len(enc) < 32 && !force {
		return n // node is embedded in its parent
	}
	return h.hashData(enc)
}

func (h *hasher) fullnodeToHash(n *fullNode, force bool) node {
	enc := nodeToBytes(n)
	if len(enc) < 32 && !force {
		return n // node is embedded in its parent
	}
	return h.hashData(enc)
}

func (h *hasher) hashData(data []byte) hashNode {
	hash := hashNode(crypto.Keccak256(data))
	if h.put != nil && h.err == nil {
		h.err = h.put(hash, data)
	}
	return hash
}

// nodeToBytes returns the RLP encoding of a collapsed node.
func nodeToBytes(n node) []byte {
	w := rlp.NewEncoderBuffer(nil)
	n.encode(w)
	result := w.ToBytes()
	w.Flush()
	return result
}

func (n *fullNode) encode(w rlp.EncoderBuffer) {
	offset := w.List()
	for _, c := range n.Children {
		if c != nil {
			c.encode(w)
		} else {
			w.Write(rlp.EmptyString)
		}
	}
	w.ListEnd(offset)
}

func (n *shortNode) encode(w rlp.EncoderBuffer) {
	offset := w.List()
	w.WriteBytes(n.Key)
	if n.Val != nil {
		n.Val.encode(w)
	} else {
		w.Write(rlp.EmptyString)
	}
	w.ListEnd(offset)
}

func (n hashNode) encode(w rlp.EncoderBuffer) {
	w.WriteBytes(n)
}

func (n valueNode) encode(w rlp.EncoderBuffer) {
	w.WriteBytes(n)
}
